package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobmcallan/toolhost/internal/apps"
	"github.com/bobmcallan/toolhost/internal/config"
)

func TestParseParams_KeepsIntegersExact(t *testing.T) {
	params, err := parseParams(`{"a": 9007199254740993, "b": 1.5, "xs": [1, 2.5], "m": {"k": 3}}`)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if got, ok := params["a"].(int64); !ok || got != 9007199254740993 {
		t.Errorf("a = %#v, want int64 9007199254740993", params["a"])
	}
	if got, ok := params["b"].(float64); !ok || got != 1.5 {
		t.Errorf("b = %#v, want float64 1.5", params["b"])
	}
	xs := params["xs"].([]any)
	if _, ok := xs[0].(int64); !ok {
		t.Errorf("xs[0] = %#v, want int64", xs[0])
	}
	if _, ok := xs[1].(float64); !ok {
		t.Errorf("xs[1] = %#v, want float64", xs[1])
	}
	if _, ok := params["m"].(map[string]any)["k"].(int64); !ok {
		t.Errorf("m.k = %#v, want int64", params["m"])
	}
}

func TestParseParams_RejectsNonObject(t *testing.T) {
	for _, in := range []string{`[1,2]`, `"x"`, `{bad`} {
		if _, err := parseParams(in); err == nil {
			t.Errorf("parseParams(%q) succeeded, want error", in)
		}
	}
}

func TestPrintTools(t *testing.T) {
	instance, err := apps.New("calculator", nil)
	if err != nil {
		t.Fatal(err)
	}
	specs, err := apps.Specs(instance)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printTools(&buf, specs); err != nil {
		t.Fatalf("printTools: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "TOOL") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "add(a int64, b int64)") {
		t.Errorf("add row missing:\n%s", out)
	}
}

func TestGenerate_Stdout(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Schema.Output = "-"

	cmd := newGenerateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := generate(cfg, cmd); err != nil {
		t.Fatalf("generate: %v", err)
	}
	doc := out.String()
	if !strings.HasPrefix(doc, `syntax = "proto3";`) {
		t.Errorf("unexpected document start:\n%s", doc)
	}
	if !strings.Contains(doc, "service Truffle {") {
		t.Errorf("service block missing:\n%s", doc)
	}
}

func TestGenerate_File(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.App.Name = "echo"
	cfg.Schema.Output = filepath.Join(t.TempDir(), "echo.proto")

	cmd := newGenerateCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	if err := generate(cfg, cmd); err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := os.ReadFile(cfg.Schema.Output)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "rpc ") {
		t.Errorf("no rpc lines in generated file:\n%s", data)
	}
	if !strings.Contains(stderr.String(), "wrote ") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestGenerate_NoOutput(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Schema.Output = ""
	if err := generate(cfg, newGenerateCmd()); err == nil {
		t.Fatal("expected error for empty output path")
	}
}
