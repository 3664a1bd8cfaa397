// JSON-RPC 2.0 control and status server
//
// The same method set is served over HTTP POST /jsonrpc and over
// WebSocket /websocket. WebSocket sessions may subscribe to device, axis
// and group status and then receive notify_status_update notifications.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"nexmotion-go/pkg/log"
	"nexmotion-go/pkg/nmc"
	"nexmotion-go/pkg/pool"
)

const DefaultBroadcastInterval = 250 * time.Millisecond

// Server exposes one device over JSON-RPC
type Server struct {
	dev    *nmc.Device
	lib    *nmc.Library
	addr   string
	logger *log.Logger

	httpServer *http.Server
	mux        *http.ServeMux
	listener   net.Listener
	interval   time.Duration

	wsUpgrader websocket.Upgrader
	wsClients  map[string]*WSClient
	wsClientMu sync.RWMutex

	// session id -> requested objects
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	running   atomic.Bool
	startTime time.Time
	stopCh    chan struct{}
	loopOnce  sync.Once
	stopOnce  sync.Once
	mu        sync.Mutex
}

type Config struct {
	// HTTP address to listen on, e.g. ":7125"
	Addr string

	Device *nmc.Device

	// Period of notify_status_update, DefaultBroadcastInterval when zero
	Interval time.Duration

	Logger *log.Logger
}

func New(cfg Config) *Server {
	s := &Server{
		dev:           cfg.Device,
		lib:           cfg.Device.Library(),
		addr:          cfg.Addr,
		logger:        cfg.Logger,
		interval:      cfg.Interval,
		mux:           http.NewServeMux(),
		wsClients:     make(map[string]*WSClient),
		subscriptions: make(map[string]subscription),
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = log.GetLogger("telemetry")
	}
	if s.interval <= 0 {
		s.interval = DefaultBroadcastInterval
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	s.mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	s.mux.HandleFunc("/websocket", s.handleWebSocket)
	s.mux.HandleFunc("/server/info", s.handleServerInfo)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routes wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start listens and serves until Stop. It also starts the status
// broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return pkgerrors.Wrapf(err, "telemetry listen on %s", s.addr)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)
	s.StartBroadcast()
	s.logger.Info("telemetry server listening on %s", ln.Addr())

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return pkgerrors.Wrap(err, "telemetry server")
	}
	return nil
}

// StartAsync runs Start in a goroutine; the channel is closed when it returns
func (s *Server) StartAsync() chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// StartBroadcast starts the notify_status_update loop once
func (s *Server) StartBroadcast() {
	s.loopOnce.Do(func() { go s.statusBroadcastLoop() })
}

// Stop closes all sessions and shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[string]*WSClient)
	s.wsClientMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) IsRunning() bool {
	return s.running.Load()
}

// Addr returns the bound address once listening
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of open WebSocket sessions
func (s *Server) ClientCount() int {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	return len(s.wsClients)
}

// JSON-RPC 2.0 structures

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *errorData `json:"data,omitempty"`
}

// errorData names the failing controller call
type errorData struct {
	Op     string `json:"op,omitempty"`
	Object string `json:"object,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func notify(method string, params any) notification {
	return notification{JSONRPC: "2.0", Method: method, Params: params}
}

// call decodes and dispatches one request. client is nil over HTTP.
func (s *Server) call(data []byte, client *WSClient) jsonRPCResponse {
	var req jsonRPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: codeParseError, Message: "Parse error"}}
	}
	if req.Method == "" {
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &jsonRPCError{Code: codeInvalidRequest, Message: "Invalid request"}}
	}

	result, err := s.dispatchMethod(req.Method, req.Params, client)
	if err != nil {
		s.logger.Debug("%s failed: %v", req.Method, err)
		return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcError(err)}
	}
	if result == nil {
		result = "ok"
	}
	return jsonRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, jsonRPCResponse{JSONRPC: "2.0", Error: &jsonRPCError{Code: codeParseError, Message: "Parse error"}})
		return
	}
	s.writeJSON(w, s.call(body, nil))
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	info, _ := s.methodServerInfo()
	s.writeJSON(w, map[string]any{"result": info})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		s.logger.Error("encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("write response: %v", err)
	}
}

// WSClient is one WebSocket session
type WSClient struct {
	id     string
	conn   *websocket.Conn
	server *Server
	sendCh chan any
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newWSClient(conn *websocket.Conn) *WSClient {
	return &WSClient{
		id:     uuid.NewString(),
		conn:   conn,
		server: s,
		sendCh: make(chan any, 64),
		done:   make(chan struct{}),
	}
}

func (c *WSClient) ID() string { return c.id }

// Send queues msg for the write pump. It drops the message when the
// session is saturated.
func (c *WSClient) Send(msg any) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Warn("dropping message to session %s (channel full)", c.id)
	}
}

func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(512 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read error: %v", err)
			}
			return
		}
		c.Send(c.server.call(data, c))
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Warn("websocket write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error: %v", err)
		return
	}

	client := s.newWSClient(conn)
	s.wsClientMu.Lock()
	s.wsClients[client.id] = client
	s.wsClientMu.Unlock()
	s.logger.WithField("session", client.id).Info("websocket session opened")

	go client.writePump()
	client.Send(notify("notify_connected", map[string]any{
		"session": client.id,
		"device":  deviceStatus(s.dev.Snapshot()),
	}))

	client.readPump()
}

func (s *Server) removeClient(client *WSClient) {
	s.wsClientMu.Lock()
	delete(s.wsClients, client.id)
	s.wsClientMu.Unlock()

	s.subMu.Lock()
	delete(s.subscriptions, client.id)
	s.subMu.Unlock()

	s.logger.WithField("session", client.id).Info("websocket session closed")
}

func (s *Server) eventTime() float64 {
	return time.Since(s.startTime).Seconds()
}

func (s *Server) statusBroadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcastStatusUpdates()
		case <-s.stopCh:
			return
		}
	}
}

// broadcastStatusUpdates sends every subscribed session its objects,
// all taken from one snapshot
func (s *Server) broadcastStatusUpdates() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if len(s.subscriptions) == 0 {
		return
	}

	snap := s.dev.Snapshot()
	eventtime := s.eventTime()
	for id, sub := range s.subscriptions {
		s.wsClientMu.RLock()
		client, ok := s.wsClients[id]
		s.wsClientMu.RUnlock()
		if !ok {
			continue
		}
		client.Send(notify("notify_status_update", []any{sub.status(snap), eventtime}))
	}
}
