// Tests for the metrics HTTP endpoint
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func serve(ms *MetricsServer, method, path string, auth ...string) (*http.Response, string) {
	req := httptest.NewRequest(method, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	w := httptest.NewRecorder()
	ms.Handler().ServeHTTP(w, req)
	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultMetricsServerConfig()
	if cfg.Address != ":9100" {
		t.Errorf("expected :9100, got %s", cfg.Address)
	}
	if cfg.ReadTimeout != 10*time.Second || cfg.WriteTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts %v/%v", cfg.ReadTimeout, cfg.WriteTimeout)
	}
}

func TestHandleMetrics(t *testing.T) {
	mm := NewMotionMetrics()
	mm.ObserveAxis(0, 1, 1, 12.5, 12.5)
	ms := NewMetricsServer(mm, ":0")

	resp, body := serve(ms, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("unexpected content type %s", ct)
	}
	if !strings.Contains(body, `nmc_axis_command_position{axis="1",device="0"} 12.5`) {
		t.Errorf("missing axis position in\n%s", body)
	}

	resp, body = serve(ms, http.MethodHead, "/metrics")
	if resp.StatusCode != http.StatusOK || body != "" {
		t.Errorf("HEAD: status %d, body %q", resp.StatusCode, body)
	}

	resp, _ = serve(ms, http.MethodPost, "/metrics")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST: expected 405, got %d", resp.StatusCode)
	}
}

func TestHandleRootAndHealth(t *testing.T) {
	ms := NewMetricsServer(NewMotionMetrics(), ":0")
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/health", http.StatusOK, "OK"},
		{"/", http.StatusOK, "/metrics"},
		{"/unknown", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		resp, body := serve(ms, http.MethodGet, tt.path)
		if resp.StatusCode != tt.status {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.status, resp.StatusCode)
		}
		if !strings.Contains(body, tt.want) {
			t.Errorf("%s: body %q lacks %q", tt.path, body, tt.want)
		}
	}
}

func TestHandleReady(t *testing.T) {
	operational := false
	cfg := DefaultMetricsServerConfig()
	cfg.Ready = func() bool { return operational }
	ms := NewMetricsServerWithConfig(NewMotionMetrics(), cfg)

	if resp, _ := serve(ms, http.MethodGet, "/ready"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("not serving: expected 503, got %d", resp.StatusCode)
	}

	ms.mu.Lock()
	ms.running = true
	ms.mu.Unlock()
	if resp, _ := serve(ms, http.MethodGet, "/ready"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("device not operational: expected 503, got %d", resp.StatusCode)
	}

	operational = true
	if resp, _ := serve(ms, http.MethodGet, "/ready"); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := DefaultMetricsServerConfig()
	cfg.Username, cfg.Password = "admin", "secret123"
	ms := NewMetricsServerWithConfig(NewMotionMetrics(), cfg)

	resp, _ := serve(ms, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no auth: expected 401, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate header")
	}
	if resp, _ := serve(ms, http.MethodGet, "/metrics", "admin", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", resp.StatusCode)
	}
	if resp, _ := serve(ms, http.MethodGet, "/metrics", "admin", "secret123"); resp.StatusCode != http.StatusOK {
		t.Errorf("valid auth: expected 200, got %d", resp.StatusCode)
	}
	// health stays open
	if resp, _ := serve(ms, http.MethodGet, "/health"); resp.StatusCode != http.StatusOK {
		t.Errorf("health: expected 200, got %d", resp.StatusCode)
	}
}

func TestGetStatus(t *testing.T) {
	ms := NewMetricsServer(NewMotionMetrics(), ":9100")
	st := ms.GetStatus()
	if st["address"] != ":9100" || st["running"].(bool) {
		t.Errorf("unexpected status %v", st)
	}

	ms.mu.Lock()
	ms.running = true
	ms.startTime = time.Now().Add(-10 * time.Second)
	ms.mu.Unlock()
	st = ms.GetStatus()
	if up, ok := st["uptime"].(float64); !ok || up < 9 {
		t.Errorf("uptime not tracked: %v", st)
	}
}

func TestStartShutdown(t *testing.T) {
	ms := NewMetricsServer(NewMotionMetrics(), "127.0.0.1:0")
	errCh := ms.StartAsync()

	deadline := time.Now().Add(2 * time.Second)
	for !ms.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !ms.IsRunning() {
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + ms.GetAddress() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ms.Shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("server error: %v", err)
	}
	if ms.IsRunning() {
		t.Error("still running after Shutdown")
	}
}

func BenchmarkHandleMetrics(b *testing.B) {
	mm := NewMotionMetrics()
	for i := 0; i < 6; i++ {
		mm.ObserveAxis(0, i, 1, float64(i), float64(i))
	}
	ms := NewMetricsServer(mm, ":0")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ms.Handler().ServeHTTP(httptest.NewRecorder(), req)
	}
}
