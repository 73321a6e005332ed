// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"minuto/internal/metrics"
	"minuto/pkg/logger"
)

type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(port string, handler http.Handler, logger *logger.Logger) *Server {
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		server: httpServer,
		logger: logger.Named("http"),
	}
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// NewHandler routes the API behind bearer authentication and leaves the
// health check, metrics and Stripe webhook open. gatherer may be nil to
// disable /metrics.
func NewHandler(api *API, auth *Authenticator, rec metrics.Recorder, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("POST /webhook/stripe", api.handleStripeWebhook)

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth.Middleware(h))
	}

	protected("GET /api/streak", api.handleGetStreak)

	protected("POST /api/rituals", api.handleStartRitual)
	protected("GET /api/rituals/{id}", api.handleRefreshRitual)
	protected("POST /api/rituals/{id}/advance", api.handleAdvanceRitual)

	protected("POST /api/devotional/session", api.handleRecordSession)
	protected("GET /api/devotional/preferences", api.handleGetPreferences)
	protected("POST /api/devotional/preferences", api.handleSavePreferences)
	protected("GET /api/devotional/content", api.handleContent)
	protected("GET /api/devotional/stats", api.handleStats)

	protected("POST /api/journals", api.handleCreateJournal)
	protected("GET /api/journals", api.handleListJournals)
	protected("GET /api/reports/humor-streak", api.handleHumorStreak)
	protected("GET /api/reports/insights", api.handleInsights)

	protected("GET /api/highlights", api.handleListHighlights)
	protected("POST /api/highlights", api.handleCreateHighlight)
	protected("DELETE /api/highlights/{id}", api.handleDeleteHighlight)
	protected("GET /api/notes", api.handleListNotes)
	protected("POST /api/notes", api.handleCreateNote)
	protected("PUT /api/notes/{id}", api.handleUpdateNote)
	protected("DELETE /api/notes/{id}", api.handleDeleteNote)
	protected("GET /api/favorites", api.handleListFavorites)
	protected("POST /api/favorites", api.handleCreateFavorite)
	protected("DELETE /api/favorites/{id}", api.handleDeleteFavorite)

	protected("POST /api/chat", api.handleChat)
	protected("GET /api/chat/usage", api.handleChatUsage)
	protected("GET /api/chat/conversations", api.handleListConversations)
	protected("GET /api/chat/conversations/{id}", api.handleGetConversation)
	protected("DELETE /api/chat/conversations/{id}", api.handleDeleteConversation)

	protected("POST /api/subscription/checkout", api.handleCheckout)
	protected("GET /api/subscription/status", api.handleSubscriptionStatus)

	return metrics.Middleware(rec, gzhttp.GzipHandler(mux))
}
