// Package server exposes the routing engine over HTTP: the /routing
// REST surface, the deposit webhook, a WebSocket execution-event
// stream, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lumapay/routingd/internal/cache"
	"github.com/lumapay/routingd/internal/metrics"
	"github.com/lumapay/routingd/internal/pipeline"
	"github.com/lumapay/routingd/internal/prefetch"
	"github.com/lumapay/routingd/internal/storage/kvstore"
)

// Server hosts the /routing HTTP surface.
type Server struct {
	service      *pipeline.Service
	edgeCache    *cache.EdgeCache
	orchestrator *prefetch.Orchestrator
	store        kvstore.Store
	hub          *Hub
	log          *zap.Logger

	http *http.Server
}

func New(addr string, service *pipeline.Service, edgeCache *cache.EdgeCache, orchestrator *prefetch.Orchestrator, store kvstore.Store, hub *Hub, log *zap.Logger) *Server {
	s := &Server{
		service:      service,
		edgeCache:    edgeCache,
		orchestrator: orchestrator,
		store:        store,
		hub:          hub,
		log:          log.Named("server"),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can mount it on
// httptest servers.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	routing := r.PathPrefix("/routing").Subrouter()

	routing.HandleFunc("/quote/v2", s.handleQuote).Methods(http.MethodPost)
	routing.HandleFunc("/execute/v2", s.handleExecute).Methods(http.MethodPost)
	routing.HandleFunc("/webhooks/deposit", s.handleDepositWebhook).Methods(http.MethodPost)
	routing.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	routing.HandleFunc("/quotes", s.handleQuotes).Methods(http.MethodGet)
	routing.HandleFunc("/venues", s.handleVenues).Methods(http.MethodGet)
	routing.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	routing.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	routing.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encoding failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
