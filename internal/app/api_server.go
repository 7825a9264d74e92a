package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"polytracker/config"
	"polytracker/internal/wallet"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsWriteTimeout = 10 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	Cached int    `json:"cached"`
}

// APIServer serves trader snapshots, health, stats and metrics over HTTP.
type APIServer struct {
	logger     *zap.Logger
	aggregator SnapshotAggregator
	cache      *TraderCache
	metrics    *Metrics
	stats      func() ServiceStats

	streamInterval time.Duration
	corsOrigins    []string
	upgrader       websocket.Upgrader

	server    *http.Server
	done      chan struct{}
	closeOnce sync.Once
}

func NewAPIServer(
	logger *zap.Logger,
	aggregator SnapshotAggregator,
	cache *TraderCache,
	metrics *Metrics,
	stats func() ServiceStats,
	cfg *config.Config,
) *APIServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.Server.StreamInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	origins := cfg.Server.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &APIServer{
		logger:         logger,
		aggregator:     aggregator,
		cache:          cache,
		metrics:        metrics,
		stats:          stats,
		streamInterval: interval,
		corsOrigins:    origins,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
}

// Handler returns the routed handler wrapped in CORS and panic recovery.
func (s *APIServer) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/trader/{address}", s.handleTrader).Methods(http.MethodGet)
	r.HandleFunc("/ws/trader/{address}", s.handleTraderStream).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(s.corsOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(cors(r))
}

// Start listens on port in the background.
func (s *APIServer) Start(port int) {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", zap.Int("port", port))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server error", zap.Error(err))
		}
	}()
}

// Shutdown closes open streams and stops the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *APIServer) handleTrader(w http.ResponseWriter, req *http.Request) {
	address, err := wallet.Normalize(mux.Vars(req)["address"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid address"})
		return
	}

	snap, err := s.aggregator.Aggregate(req.Context(), address, ModeInteractive)
	if err != nil {
		s.logger.Error("trader request failed",
			zap.String("wallet", wallet.Short(address)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Cached: s.cache.Len()})
}

func (s *APIServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, s.stats())
}

// handleTraderStream pushes the wallet's snapshot on connect and then every
// stream interval until the client goes away or the server shuts down.
func (s *APIServer) handleTraderStream(w http.ResponseWriter, req *http.Request) {
	address, err := wallet.Normalize(mux.Vars(req)["address"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid address"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reads only detect disconnects; inbound messages are ignored.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("trader stream opened", zap.String("wallet", wallet.Short(address)))

	push := func() bool {
		var msg any
		snap, err := s.aggregator.Aggregate(ctx, address, ModeInteractive)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			msg = errorResponse{Error: err.Error()}
		} else {
			msg = snap
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(msg) == nil
	}

	if !push() {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoveryLogger adapts zap to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("recovered from panic in http handler", zap.String("panic", fmt.Sprint(v...)))
}
