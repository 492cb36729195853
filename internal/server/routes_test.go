package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bobmcallan/toolhost/internal/app"
	"github.com/bobmcallan/toolhost/internal/common"
	"github.com/bobmcallan/toolhost/internal/config"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Schema.Output = ""
	application, err := app.New(cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return application
}

func serve(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRoutes_HealthEndpoint(t *testing.T) {
	srv := New(newTestApp(t))

	w := serve(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if body["status"] != "ok" || body["app"] != "calculator" {
		t.Errorf("unexpected health body %#v", body)
	}
}

func TestRoutes_VersionSchemaTools(t *testing.T) {
	srv := New(newTestApp(t))

	if w := serve(t, srv, "GET", "/api/version", ""); w.Code != http.StatusOK {
		t.Errorf("version: expected 200, got %d", w.Code)
	}

	w := serve(t, srv, "GET", "/api/schema", "")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), `syntax = "proto3";`) {
		t.Errorf("schema: unexpected response %d %q", w.Code, w.Body.String())
	}

	w = serve(t, srv, "GET", "/api/tools", "")
	var catalog struct {
		Tools []map[string]any `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("tools: %v", err)
	}
	if len(catalog.Tools) == 0 || catalog.Tools[0]["name"] != "add" {
		t.Errorf("tools: unexpected catalog %v", catalog.Tools)
	}
}

func TestRoutes_ToolCall(t *testing.T) {
	srv := New(newTestApp(t))

	w := serve(t, srv, "POST", "/add", `{"a": 2, "b": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if strings.TrimSpace(w.Body.String()) != `{"result":5}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = serve(t, srv, "POST", "/divide", `{"a": 5, "b": 0}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}

	w = serve(t, srv, "GET", "/add", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestRoutes_NotFound(t *testing.T) {
	srv := New(newTestApp(t))

	for _, path := range []string{"/api/nonexistent", "/a/b/c"} {
		w := serve(t, srv, "GET", path, "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}

	w := serve(t, srv, "POST", "/nonexistent_tool", "{}")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown tool: expected 404, got %d", w.Code)
	}
}

func TestRoutes_MiddlewareApplied(t *testing.T) {
	srv := New(newTestApp(t))

	w := serve(t, srv, "GET", "/api/health", "")
	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected X-Correlation-ID header from middleware")
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header from middleware")
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	srv := New(newTestApp(t))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Post("http://"+ln.Addr().String()+"/echo_ping_missing", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}
