// Package apps lists the applications toolhost can serve.
package apps

import (
	"fmt"
	"sort"

	"github.com/bobmcallan/toolhost/internal/apps/calculator"
	"github.com/bobmcallan/toolhost/internal/apps/chat"
	"github.com/bobmcallan/toolhost/internal/apps/echo"
	"github.com/bobmcallan/toolhost/internal/apps/ragchat"
	"github.com/bobmcallan/toolhost/internal/backend"
	"github.com/bobmcallan/toolhost/internal/snapshot"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// App is a servable application: it registers its tools and its fields
// can be saved and loaded.
type App interface {
	tool.Provider
	snapshot.State
	Name() string
}

// Backend is the model service the chat applications use.
type Backend interface {
	backend.Completer
	backend.Embedder
}

type constructor func(b Backend) App

var registry = map[string]constructor{
	calculator.Name: func(Backend) App { return calculator.New() },
	echo.Name:       func(Backend) App { return echo.New() },
	chat.Name:       func(b Backend) App { return chat.New(b) },
	ragchat.Name:    func(b Backend) App { return ragchat.New(b) },
}

// Names returns the available application names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a registered application.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// New constructs the named application.
func New(name string, b Backend) (App, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown application %q (available: %v)", name, Names())
	}
	return ctor(b), nil
}

// Specs extracts the application's tools followed by the snapshot
// built-ins.
func Specs(app App) ([]tool.Spec, error) {
	return tool.Extract(app, snapshot.Tools(app.Name(), app))
}
