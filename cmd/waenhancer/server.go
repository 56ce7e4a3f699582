package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"waenhancer/internal/constants"
	apperrors "waenhancer/internal/errors"
	"waenhancer/internal/httputil"
	"waenhancer/internal/middleware"
	"waenhancer/internal/models"
	"waenhancer/internal/service"
	"waenhancer/internal/tracing"
	"waenhancer/internal/versioning"
	"waenhancer/pkg/protocol"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	cfg     models.ServerConfig
	broker  *service.Broker
	hub     *service.Hub
	store   Pinger
	baseCtx context.Context
	server  *http.Server
}

// NewServer builds the router. Websocket connections live until baseCtx is done.
func NewServer(baseCtx context.Context, cfg models.ServerConfig, broker *service.Broker, hub *service.Hub, store Pinger, logger *logrus.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		cfg:     cfg,
		broker:  broker,
		hub:     hub,
		store:   store,
		baseCtx: baseCtx,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/version", s.handleVersion()).Methods(http.MethodGet)

	auth := middleware.RequireToken(s.cfg.AuthToken, s.logger)
	version := versioning.NewVersionMiddleware(s.logger).VersionHandler
	s.router.Handle("/ws", auth(version(s.handleWebSocket()))).Methods(http.MethodGet)

	limiter := middleware.NewRateLimiter(s.cfg.RateLimitPerSecond, s.cfg.RateLimitBurst, false, s.logger)
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(auth, version, limiter.Middleware)
	api.HandleFunc("/messages", s.handleAPIMessage()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("addr", addr).Info("Starting server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]interface{}{
			"status":   "ok",
			"monitors": s.hub.Count(),
		}
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.WithError(err).Error("Health check failed: store unreachable")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		_ = httputil.WriteJSON(w, status, body)
	}
}

func (s *Server) handleVersion() http.HandlerFunc {
	info := versioning.NewInfo(Version, GitCommit, BuildTime)
	return func(w http.ResponseWriter, r *http.Request) {
		_ = httputil.WriteJSON(w, http.StatusOK, info)
	}
}

// handleWebSocket registers the connecting monitor with the hub for the life of the
// connection. Requests on it are answered by the broker.
func (s *Server) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server's read/write timeouts must not apply to the long-lived socket.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := protocol.Accept(w, r, s.logger, protocol.WithRequestHandler(s.handleRequest))
		if err != nil {
			s.logger.WithError(err).Warn("Failed to accept monitor connection")
			return
		}
		unregister := s.hub.Register(conn)
		defer unregister()

		ctx := tracing.WithRequestID(s.baseCtx, tracing.GetRequestID(r.Context()))
		if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.WithError(err).Debug("Monitor connection closed")
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.ID != "" {
		ctx = tracing.WithRequestID(ctx, req.ID)
	}
	return s.broker.Handle(ctx, req)
}

// handleAPIMessage serves the popup: one protocol request per POST.
func (s *Server) handleAPIMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A request is answered only once its operation resolves; an AI call may
		// outlast the server's write timeout and is bounded by the AI client instead.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxProtocolMessageBytes)

		var req protocol.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			appErr := apperrors.NewValidationError("body", "", fmt.Sprintf("invalid JSON: %v", err))
			_ = httputil.WriteJSON(w, http.StatusBadRequest, protocol.Failure(appErr))
			return
		}

		ctx := service.WithVerbose(r.Context(), service.IsVerboseLogging(s.baseCtx))
		resp := s.broker.Handle(ctx, &req)
		if resp == nil {
			_ = httputil.WriteJSON(w, http.StatusAccepted, protocol.OK())
			return
		}
		resp.ID = req.ID

		status := http.StatusOK
		if !resp.Success {
			status = apperrors.HTTPStatusCode(resp.Err())
		}
		_ = httputil.WriteJSON(w, status, resp)
	}
}
