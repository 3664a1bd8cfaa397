// HTTP endpoint for Prometheus scraping
//
//	srv := metrics.NewMetricsServer(mm, ":9100")
//	errc := srv.StartAsync()
//	defer srv.Shutdown(context.Background())
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Gatherer renders metrics in the text exposition format
type Gatherer interface {
	Gather() string
}

// MetricsServer serves /metrics, /health and /ready
type MetricsServer struct {
	src    Gatherer
	addr   string
	server *http.Server
	mux    *http.ServeMux
	ready  func() bool

	username string
	password string

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	listener  net.Listener
}

type MetricsServerConfig struct {
	Address string

	// Basic auth, disabled when both are empty
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Ready reports whether the controller is operational. /ready
	// answers 503 while it returns false. Nil means ready while serving.
	Ready func() bool
}

func DefaultMetricsServerConfig() MetricsServerConfig {
	return MetricsServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func NewMetricsServer(src Gatherer, addr string) *MetricsServer {
	cfg := DefaultMetricsServerConfig()
	cfg.Address = addr
	return NewMetricsServerWithConfig(src, cfg)
}

func NewMetricsServerWithConfig(src Gatherer, cfg MetricsServerConfig) *MetricsServer {
	ms := &MetricsServer{
		src:      src,
		addr:     cfg.Address,
		mux:      http.NewServeMux(),
		ready:    cfg.Ready,
		username: cfg.Username,
		password: cfg.Password,
	}
	ms.mux.HandleFunc("/metrics", ms.handleMetrics)
	ms.mux.HandleFunc("/health", ms.handleHealth)
	ms.mux.HandleFunc("/ready", ms.handleReady)
	ms.mux.HandleFunc("/", ms.handleRoot)

	ms.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      ms.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return ms
}

// Handler returns the server mux, e.g. for httptest
func (ms *MetricsServer) Handler() http.Handler {
	return ms.mux
}

// Start listens and serves until Shutdown
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.addr)
	if err != nil {
		return errors.Wrapf(err, "metrics server listen on %s", ms.addr)
	}
	ms.mu.Lock()
	ms.running = true
	ms.startTime = time.Now()
	ms.listener = ln
	ms.mu.Unlock()

	if err := ms.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "metrics server")
	}
	return nil
}

// StartAsync runs Start in a goroutine. The channel yields its error, if
// any, and is closed when the server stops.
func (ms *MetricsServer) StartAsync() chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := ms.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	ms.mu.Lock()
	ms.running = false
	ms.mu.Unlock()
	return ms.server.Shutdown(ctx)
}

func (ms *MetricsServer) IsRunning() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.running
}

// GetAddress returns the bound address once listening, else the
// configured one
func (ms *MetricsServer) GetAddress() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.listener != nil {
		return ms.listener.Addr().String()
	}
	return ms.addr
}

func (ms *MetricsServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !ms.checkAuth(w, r) {
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	out := ms.src.Gather()
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		return
	}
	_, _ = w.Write([]byte(out))
}

func (ms *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (ms *MetricsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ok := ms.IsRunning()
	if ok && ms.ready != nil {
		ok = ms.ready()
	}
	w.Header().Set("Content-Type", "text/plain")
	if ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("Not Ready\n"))
}

const landingPage = `<!DOCTYPE html>
<html>
<head><title>NexMotion Metrics</title></head>
<body>
<h1>NexMotion controller metrics</h1>
<p><a href="/metrics">/metrics</a> Prometheus metrics</p>
<p><a href="/health">/health</a> liveness</p>
<p><a href="/ready">/ready</a> device in operation</p>
</body>
</html>`

func (ms *MetricsServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingPage))
}

func (ms *MetricsServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if ms.username == "" && ms.password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if ok &&
		subtle.ConstantTimeCompare([]byte(user), []byte(ms.username)) == 1 &&
		subtle.ConstantTimeCompare([]byte(pass), []byte(ms.password)) == 1 {
		return true
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="NexMotion Metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
	return false
}

// GetStatus reports the server state for diagnostics
func (ms *MetricsServer) GetStatus() map[string]any {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	st := map[string]any{
		"address": ms.addr,
		"running": ms.running,
	}
	if ms.running {
		st["uptime"] = time.Since(ms.startTime).Seconds()
	}
	return st
}
