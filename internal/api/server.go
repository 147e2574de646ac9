// Package api serves the read-only HTTP API: health, task history and metrics.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/metrics"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/models"
)

const jsonContentType = "application/json"

const (
	apiV1Prefix = "/api/v1"
	healthPath  = "/health"
	tasksPath   = "/tasks"
	metricsPath = "/metrics"
)

// StatusProvider reports what the scheduler is doing.
type StatusProvider interface {
	Health() models.HealthStatus
}

// MetricsProvider exposes the collected counters and timings.
type MetricsProvider interface {
	Snapshot() metrics.Snapshot
}

// Server runs the leecher REST API.
type Server struct {
	status  StatusProvider
	history database.TaskReader
	metrics MetricsProvider
	apiKey  string
	srv     *http.Server
}

// NewServer creates the API server. When apiKey is empty, only requests from
// localhost are accepted.
func NewServer(status StatusProvider, history database.TaskReader, listenAddr, apiKey string) *Server {
	s := &Server{status: status, history: history, apiKey: apiKey}

	r := chi.NewRouter()
	r.Use(s.requestID, s.auth)
	r.Route(apiV1Prefix, func(r chi.Router) {
		r.Get(healthPath, s.healthHandler)
		r.Get(tasksPath, s.listTasksHandler)
		r.Get(tasksPath+"/{taskID}", s.getTaskHandler)
		r.Get(metricsPath, s.metricsHandler)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.srv = &http.Server{
		Addr:         listenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// WithMetrics enables GET /api/v1/metrics.
func (s *Server) WithMetrics(p MetricsProvider) *Server {
	s.metrics = p
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// isPrivateIP reports whether ip is in 10.0.0.0/8, 172.16.0.0/12, or 192.168.0.0/16.
func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4[0] == 10 ||
			(ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31) ||
			(ip4[0] == 192 && ip4[1] == 168)
	}
	return false
}

// isLocalOrDockerHost returns true for localhost, or for a private IP when
// RUNNING_IN_DOCKER=true (host accessing via port mapping).
func isLocalOrDockerHost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	if host == "127.0.0.1" || host == "::1" {
		return true
	}
	if os.Getenv("RUNNING_IN_DOCKER") != "true" {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && isPrivateIP(ip)
}

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDFromContext returns the request ID from the context, or empty string.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDContextKey).(string); ok {
		return v
	}
	return ""
}

func (*Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey, id)))
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := RequestIDFromContext(r.Context())
		if s.apiKey != "" {
			token := ""
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				token = strings.TrimSpace(ah[7:])
			}
			if token == "" {
				token = r.Header.Get("X-API-Key")
			}
			if token != s.apiKey {
				logutils.Log.WithFields(map[string]any{
					"request_id": requestID,
					"path":       r.URL.Path,
				}).Warn("API request unauthorized")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		} else if !isLocalOrDockerHost(r) {
			logutils.Log.WithFields(map[string]any{
				"request_id":  requestID,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			}).Warn("API request rejected: non-localhost without API key")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		logutils.Log.WithFields(map[string]any{
			"request_id": requestID,
			"path":       r.URL.Path,
			"method":     r.Method,
		}).Debug("API request")
		next.ServeHTTP(w, r)
	})
}

// Start listens and serves. Blocks until Shutdown is called.
func (s *Server) Start() error {
	logutils.Log.WithField("addr", s.srv.Addr).Info("API server starting")
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Name identifies the server to the shutdown manager.
func (*Server) Name() string {
	return "http_server"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutils.Log.WithError(err).Warn("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
