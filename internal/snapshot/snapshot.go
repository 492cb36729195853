// Package snapshot provides the save and load built-in tools.
//
// A snapshot is a deterministic CBOR document {app, version, fields}. The
// fields value is whatever the application's State returns; load decodes
// and validates all of it before the application swaps anything in.
package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/toolhost/internal/codec"
	"github.com/bobmcallan/toolhost/internal/dispatch"
	"github.com/bobmcallan/toolhost/internal/tool"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

// State is implemented by applications whose fields can be exported and
// replaced.
type State interface {
	// Snapshot returns the current field set. The value must be CBOR
	// encodable.
	Snapshot() any
	// Restore replaces the field set from an encoded Snapshot value. It
	// must leave the application untouched when it returns an error.
	Restore(fields codec.RawMessage) error
}

// ErrWrongApp is returned when loading a snapshot taken from another
// application.
var ErrWrongApp = errors.New("snapshot belongs to a different application")

type envelope struct {
	App     string           `cbor:"app"`
	Version int              `cbor:"version"`
	Fields  codec.RawMessage `cbor:"fields"`
}

// Save encodes the state of the named application.
func Save(app string, s State) ([]byte, error) {
	fields, err := codec.Marshal(s.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("encode %s fields: %w", app, err)
	}
	data, err := codec.Marshal(envelope{App: app, Version: FormatVersion, Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", app, err)
	}
	return data, nil
}

// Load validates data as a snapshot of app and restores it into s.
func Load(app string, s State, data []byte) error {
	if len(data) == 0 {
		return errors.New("snapshot is empty")
	}
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if env.App != app {
		return fmt.Errorf("%w: got %q, want %q", ErrWrongApp, env.App, app)
	}
	if env.Version != FormatVersion {
		return fmt.Errorf("unsupported snapshot version %d", env.Version)
	}
	if len(env.Fields) == 0 {
		return errors.New("snapshot has no fields")
	}
	if err := s.Restore(env.Fields); err != nil {
		return fmt.Errorf("restore %s: %w", app, err)
	}
	return nil
}

// Tools registers save and load for s. The dispatch table's guard gives
// save a read lock and load the write lock, so a snapshot never observes
// a half-applied mutation.
func Tools(app string, s State) tool.Provider {
	return tool.ProviderFunc(func(r *tool.Registrar) {
		r.Tool("save").
			Describe("Export the application's current fields as an opaque snapshot.").
			Returns(tool.Bytes()).
			ReadOnly().
			Handle(func(_ context.Context, _ tool.Args) (any, error) {
				return Save(app, s)
			})

		r.Tool("load").
			Describe("Replace the application's fields with a snapshot produced by save.").
			Param("state", tool.Bytes()).
			Handle(func(_ context.Context, args tool.Args) (any, error) {
				if err := Load(app, s, args.Bytes("state")); err != nil {
					return nil, &dispatch.ArgumentError{Field: "state", Reason: err.Error()}
				}
				return nil, nil
			})
	})
}
