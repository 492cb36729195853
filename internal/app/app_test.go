package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/config"
)

func TestNew_WiresEveryComponent(t *testing.T) {
	cfg := config.NewDefaultConfig()
	a, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if a.Instance.Name() != "calculator" {
		t.Errorf("expected calculator, got %s", a.Instance.Name())
	}
	if a.Table.Len() != len(a.Specs) || len(a.Document.Methods) != len(a.Specs) {
		t.Errorf("table %d, document %d, specs %d disagree", a.Table.Len(), len(a.Document.Methods), len(a.Specs))
	}
	for name, wired := range map[string]bool{
		"health":  a.HealthHandler != nil,
		"version": a.VersionHandler != nil,
		"schema":  a.SchemaHandler != nil,
		"tools":   a.ToolsHandler != nil,
		"tool":    a.ToolHandler != nil,
		"mcp":     a.MCPHandler != nil,
		"rpc":     a.RPCServer != nil,
	} {
		if !wired {
			t.Errorf("%s component not wired", name)
		}
	}
	if !bytes.Contains(a.Schema(), []byte("service Truffle {")) {
		t.Errorf("unexpected schema:\n%s", a.Schema())
	}
}

func TestNew_SchemaOptionsFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.App.Name = "echo"
	cfg.Schema.Package = "demo.v1"
	cfg.Schema.Service = "Echo"
	cfg.MCP.Enabled = false

	a, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc := string(a.Schema())
	if !strings.Contains(doc, "package demo.v1;") || !strings.Contains(doc, "service Echo {") {
		t.Errorf("schema ignores config:\n%s", doc)
	}
	if a.MCPHandler != nil {
		t.Error("MCP handler should be nil when disabled")
	}
}

func TestNew_UnknownApplication(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.App.Name = "spreadsheet"

	_, err := New(cfg, common.NewSilentLogger())
	if err == nil || !strings.Contains(err.Error(), "unknown application") {
		t.Errorf("expected unknown application error, got %v", err)
	}
}

func TestNew_InvalidServiceName(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Schema.Service = "not a service"

	if _, err := New(cfg, common.NewSilentLogger()); err == nil {
		t.Error("expected generation error for invalid service name")
	}
}

func TestWriteSchema(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Schema.Output = filepath.Join(t.TempDir(), "out", "truffle.proto")

	a, err := New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.WriteSchema(); err != nil {
		t.Fatalf("WriteSchema: %v", err)
	}
	got, err := os.ReadFile(cfg.Schema.Output)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, a.Schema()) {
		t.Error("written document differs from rendered document")
	}

	cfg.Schema.Output = ""
	if err := a.WriteSchema(); err != nil {
		t.Errorf("empty output should be skipped, got %v", err)
	}
}
