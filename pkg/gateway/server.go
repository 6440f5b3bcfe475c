package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/internal/tracing"
	"github.com/harun/knife/pkg/inflight"
	"github.com/harun/knife/pkg/service"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// maxRequestSize bounds a single JSON-RPC message
const maxRequestSize = 16 << 20

var errShuttingDown = &RPCError{Code: InternalError, Message: "server is shutting down"}

// Server is the JSON-RPC server exposing a service over WebSocket and HTTP
type Server struct {
	host            string
	port            int
	shutdownTimeout time.Duration
	server          *http.Server
	listener        net.Listener
	upgrader        websocket.Upgrader
	conns           *ConnRegistry
	router          *Router
	service         *service.Service
	logger          zerolog.Logger
	isShuttingDown  bool
	shutdownMu      sync.RWMutex
	inFlightReqs    sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	Service         *service.Service
	Logger          zerolog.Logger
}

// NewServer creates a new server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
		conns:           NewConnRegistry(),
		router:          NewRouter(),
		service:         cfg.Service,
		logger:          cfg.Logger.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	if err := s.registerMethods(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerMethods exposes every service method plus server.connections
func (s *Server) registerMethods() error {
	for _, m := range s.service.Methods() {
		if err := s.router.Handle(m.Name, RequestHandler(m.Handler)); err != nil {
			return fmt.Errorf("register %s: %w", m.Name, err)
		}
	}
	return s.router.Handle("server.connections", func(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
		return s.conns.GetConnected(), nil
	})
}

// Handler returns the HTTP handler serving /ws, /rpc, /healthz and /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Server error")
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server. In-flight requests get the shutdown
// timeout to finish before connections are closed.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, conn := range s.conns.GetAll() {
		conn.Conn.Close()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	ws.SetReadLimit(maxRequestSize)

	connID, _ := gonanoid.New()
	conn := &Conn{
		ID:           connID,
		Conn:         ws,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}
	s.conns.Add(conn)

	s.logger.Info().
		Str("connId", connID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.handleConn(conn)
}

// handleConn serves the requests of one connection sequentially
func (s *Server) handleConn(conn *Conn) {
	defer func() {
		conn.Conn.Close()
		s.conns.Remove(conn.ID)
		s.logger.Info().Str("connId", conn.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error().Err(err).Str("connId", conn.ID).Msg("WebSocket error")
			}
			return
		}

		s.conns.RecordRequest(conn.ID)
		resp := s.handleMessage(conn, message)
		if err := conn.Conn.WriteMessage(websocket.TextMessage, s.encode(resp)); err != nil {
			s.logger.Error().
				Err(err).
				Str("connId", conn.ID).
				Str("requestId", resp.ID).
				Msg("Failed to send response")
			return
		}
	}
}

// handleMessage parses and serves one message from a connection
func (s *Server) handleMessage(conn *Conn, message []byte) *RPCResponse {
	req, err := DecodeRequest(message)
	if err != nil {
		return failure(req, err)
	}
	if s.shuttingDown() {
		return failure(req, errShuttingDown)
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	ctx := requestContext(context.Background(), conn.ID, "", req)
	return s.route(ctx, req)
}

// handleRPC handles single-shot HTTP JSON-RPC requests. Each request is
// served by its own worker.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	req, err := DecodeRequest(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(failure(req, err))
		return
	}
	if s.shuttingDown() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(failure(req, errShuttingDown))
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	ctx := requestContext(r.Context(), inflight.NewWorkerID(), r.Header.Get("X-Trace-Id"), req)
	resp := s.route(ctx, req)

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(s.encode(resp)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write RPC response")
	}
}

func (s *Server) route(ctx context.Context, req *RPCRequest) *RPCResponse {
	logger := tracing.Logger(ctx, s.logger)
	logger.Debug().
		Str("worker_id", inflight.WorkerFromContext(ctx)).
		Msg("Received RPC request")

	return s.router.Dispatch(ctx, req)
}

// encode marshals resp. A result that cannot be encoded is replaced by an
// internal error so the caller still gets a reply for its id.
func (s *Server) encode(resp *RPCResponse) []byte {
	data, err := json.Marshal(resp)
	if err == nil {
		return data
	}

	s.logger.Error().Err(err).Str("requestId", resp.ID).Msg("Failed to encode RPC response")
	data, _ = json.Marshal(&RPCResponse{
		ID:        resp.ID,
		numericID: resp.numericID,
		JSONRPC:   protocolVersion,
		Error:     rpcErrorf(InternalError, "response is not JSON-serializable: %v", err),
	})
	return data
}

// Methods returns the names of the methods the server exposes
func (s *Server) Methods() []string {
	return s.router.Methods()
}

// GetConnectedClients returns information about all connected clients
func (s *Server) GetConnectedClients() []ConnInfo {
	return s.conns.GetConnected()
}
