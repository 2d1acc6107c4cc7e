package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/cvewatch/internal/handler"
	"github.com/dukerupert/cvewatch/internal/middleware"
	"github.com/dukerupert/cvewatch/internal/view"
	ws "github.com/dukerupert/cvewatch/internal/websocket"
)

// actionLimit bounds user actions per client. Scrapes and re-syncs are
// expensive on the backend.
var actionLimit = middleware.Limit{Requests: 30, Window: time.Minute}

// Controller is the sync controller as seen by the server.
type Controller interface {
	handler.Controller
	Changes() (<-chan struct{}, func())
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	ctrl        Controller
	dashboardH  *handler.DashboardHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, ctrl Controller, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	hub.SetGreeting(func() ws.Message {
		return stateMessage(ctrl)
	})

	return &Server{
		db:          db,
		hub:         hub,
		ctrl:        ctrl,
		dashboardH:  handler.NewDashboardHandler(ctrl, hub, logger.With("component", "dashboard")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// Hub returns the viewer feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// RunFeed relays every controller state change to connected viewers until
// ctx ends or the controller closes.
func (s *Server) RunFeed(ctx context.Context) {
	changes, stop := s.ctrl.Changes()
	defer stop()
	s.hub.Relay(ctx, changes, func() ws.Message {
		return stateMessage(s.ctrl)
	})
}

func stateMessage(ctrl Controller) ws.Message {
	d := view.Project(ctrl.Snapshot())
	return ws.NewMessage(ws.TypeStateChanged, d.Version, d)
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))
	mux.HandleFunc("GET /api/state", s.dashboardH.State)
	mux.HandleFunc("GET /partials/dashboard", s.dashboardH.DashboardPartial)
	mux.HandleFunc("GET /", s.dashboardH.Dashboard)

	mux.HandleFunc("POST /actions/refresh", s.rateLimited(s.dashboardH.Refresh))
	mux.HandleFunc("POST /actions/scrape", s.rateLimited(s.dashboardH.Scrape))
	mux.HandleFunc("POST /actions/severity", s.rateLimited(s.dashboardH.Severity))
	mux.HandleFunc("POST /actions/subscribe", s.rateLimited(s.dashboardH.Subscribe))
	mux.HandleFunc("POST /actions/unsubscribe", s.rateLimited(s.dashboardH.Unsubscribe))
	mux.HandleFunc("POST /actions/send-test", s.rateLimited(s.dashboardH.SendTest))
	mux.HandleFunc("POST /actions/timeline/generate", s.rateLimited(s.dashboardH.GenerateTimeline))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["storage"] = err.Error()
	}

	snap := s.ctrl.Snapshot()
	body["syncing"] = snap.IsSyncing
	body["version"] = snap.Version
	body["viewers"] = s.hub.ClientCount()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, actionLimit)
	return rl(h).ServeHTTP
}
