package web

import (
	"net/http"
	"time"

	"github.com/d3vfreak/fleet-overview/internal/database"
	"github.com/d3vfreak/fleet-overview/internal/esi"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server serves the OAuth callback, the realtime endpoint and the dashboard assets.
type Server struct {
	esi    *esi.Client
	users  database.Store
	domain string
	logger *zap.Logger
}

// NewRouter builds the HTTP routes.
func NewRouter(
	esiClient *esi.Client, users database.Store, realtime http.Handler, staticDir, domain string, logger *zap.Logger,
) *mux.Router {
	s := &Server{
		esi:    esiClient,
		users:  users,
		domain: domain,
		logger: logger.Named("web"),
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/callback/", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)
	r.Handle("/ws", realtime).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir))).Methods(http.MethodGet, http.MethodHead)

	return r
}

// logRequests logs every request except the long-lived websocket.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		if r.URL.Path == "/ws" {
			return
		}

		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}
