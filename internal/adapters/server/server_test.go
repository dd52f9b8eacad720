package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/manovate/crm/internal/adapters/server/common"
	"github.com/manovate/crm/internal/adapters/storage/memory"
	"github.com/manovate/crm/internal/app"
)

// newDemoDependencies wires transports over the demo pipeline held in memory.
func newDemoDependencies(t *testing.T) Dependencies {
	t.Helper()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	next := int64(100)
	svc := app.NewService(
		app.NewRecordStore(memory.New(), nil, nil),
		func() int64 { next++; return next },
		func() time.Time { return now },
		app.ServiceConfig{SeedDemoDeals: true, SeedNotifications: true},
	)
	adapter := common.NewAppServiceAdapter(svc)
	return Dependencies{Pipeline: adapter, Notifications: adapter, Changes: adapter}
}

func TestNormalizeConfig(t *testing.T) {
	cfg, err := normalizeConfig(Config{APIEndpoint: "api/v2/", MCPEndpoint: " "})
	if err != nil {
		t.Fatalf("normalizeConfig() error = %v", err)
	}
	want := Config{
		HTTPBind:      "127.0.0.1:8080",
		APIEndpoint:   "/api/v2",
		MCPEndpoint:   "/mcp",
		ServerName:    "manovate",
		ServerVersion: "dev",
	}
	if cfg != want {
		t.Fatalf("normalizeConfig() = %#v, want %#v", cfg, want)
	}

	if _, err := normalizeConfig(Config{APIEndpoint: "/same", MCPEndpoint: "same/"}); err == nil {
		t.Fatal("expected endpoint collision error")
	}
	if got := normalizeEndpoint("///", "/mcp"); got != "/mcp" {
		t.Fatalf("normalizeEndpoint(///) = %q, want /mcp", got)
	}
}

func TestNewHandlerRequiresPipeline(t *testing.T) {
	if _, _, err := NewHandler(Config{}, Dependencies{}); err == nil {
		t.Fatal("expected error without a pipeline dependency")
	}
}

func TestNewHandlerRoutesAPIAndHealth(t *testing.T) {
	handler, cfg, err := NewHandler(Config{}, newDemoDependencies(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	for _, target := range []string{"/healthz", "/readyz", cfg.APIEndpoint + "/board", cfg.APIEndpoint + "/deals/1"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200: %s", target, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.APIEndpoint+"/deals/999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET unknown deal = %d, want 404", rec.Code)
	}
}

func TestReadinessReportsBackendFailure(t *testing.T) {
	deps := newDemoDependencies(t)
	deps.Ready = func(context.Context) error { return errors.New("database is locked") }
	handler, _, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rec.Code)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d, want 200", rec.Code)
	}
}

func TestRequestLoggingTagsRequests(t *testing.T) {
	var buf bytes.Buffer
	deps := newDemoDependencies(t)
	deps.Logger = log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	handler, cfg, err := NewHandler(Config{}, deps)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, cfg.APIEndpoint+"/deals/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id header")
	}
	out := buf.String()
	for _, want := range []string{"WARN", "status=400", "path=/api/v1/deals/abc", "request_id="} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q, want req-42", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPBind: "127.0.0.1:0"}, newDemoDependencies(t))
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * defaultShutdownTimeout):
		t.Fatal("Run() did not return after cancel")
	}
}
