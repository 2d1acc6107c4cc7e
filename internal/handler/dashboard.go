package handler

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/gateway"
	"github.com/dukerupert/cvewatch/internal/model"
	"github.com/dukerupert/cvewatch/internal/syncer"
	"github.com/dukerupert/cvewatch/internal/view"
	"github.com/dukerupert/cvewatch/internal/websocket"
)

//go:embed templates/*.html
var templateFS embed.FS

// Controller is the part of the sync controller the dashboard drives.
type Controller interface {
	Snapshot() syncer.Snapshot
	Refresh(ctx context.Context) error
	ManualScrape(ctx context.Context) error
	SelectSeverity(ctx context.Context, f filter.Facet) error
	Subscribe(ctx context.Context, email string) error
	Unsubscribe(ctx context.Context, email string) error
	SendTestEmail(ctx context.Context, email string) error
	GenerateTimeline(ctx context.Context) error
}

// Broadcaster delivers notices to connected viewers.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type DashboardHandler struct {
	ctrl      Controller
	hub       Broadcaster
	templates *template.Template
	logger    *slog.Logger
}

func NewDashboardHandler(ctrl Controller, hub Broadcaster, logger *slog.Logger) *DashboardHandler {
	tmpl := template.Must(template.ParseFS(templateFS, "templates/*.html"))
	return &DashboardHandler{
		ctrl:      ctrl,
		hub:       hub,
		templates: tmpl,
		logger:    logger,
	}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.render(w, "layout", view.Project(h.ctrl.Snapshot()))
}

// DashboardPartial renders the dashboard body only; the page swaps it in
// on every state change.
func (h *DashboardHandler) DashboardPartial(w http.ResponseWriter, r *http.Request) {
	h.render(w, "dashboard", view.Project(h.ctrl.Snapshot()))
}

func (h *DashboardHandler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, view.Project(h.ctrl.Snapshot()))
}

func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, syncer.ActionBulkLoad, "", h.ctrl.Refresh)
}

func (h *DashboardHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, syncer.ActionManualScrape, "", h.ctrl.ManualScrape)
}

func (h *DashboardHandler) GenerateTimeline(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, syncer.ActionGenerateTimeline, "", h.ctrl.GenerateTimeline)
}

func (h *DashboardHandler) Severity(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, syncer.ActionSeverity)
	if !ok {
		return
	}
	h.run(w, r, syncer.ActionSeverity, "", func(ctx context.Context) error {
		return h.ctrl.SelectSeverity(ctx, filter.Facet(req.Severity))
	})
}

func (h *DashboardHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, syncer.ActionSubscribe, h.ctrl.Subscribe)
}

func (h *DashboardHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, syncer.ActionUnsubscribe, h.ctrl.Unsubscribe)
}

func (h *DashboardHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	h.emailAction(w, r, syncer.ActionSendTest, h.ctrl.SendTestEmail)
}

func (h *DashboardHandler) emailAction(w http.ResponseWriter, r *http.Request, a syncer.Action, fn func(context.Context, string) error) {
	req, ok := h.decode(w, r, a)
	if !ok {
		return
	}
	h.run(w, r, a, req.Email, func(ctx context.Context) error {
		return fn(ctx, req.Email)
	})
}

type actionRequest struct {
	Email    string `json:"email"`
	Severity string `json:"severity"`
}

// decode reads a JSON or form body. An empty body is an empty request.
func (h *DashboardHandler) decode(w http.ResponseWriter, r *http.Request, a syncer.Action) (actionRequest, bool) {
	var req actionRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"notice": view.Notice{Action: string(a), Kind: view.NoticeError, Text: "Nieprawidłowe żądanie"},
			})
			return req, false
		}
		return req, true
	}
	req.Email = r.FormValue("email")
	req.Severity = r.FormValue("severity")
	return req, true
}

// run executes one action and answers with its notice. The notice is also
// broadcast so every viewer sees it, unless the requester already left.
func (h *DashboardHandler) run(w http.ResponseWriter, r *http.Request, a syncer.Action, email string, fn func(context.Context) error) {
	err := fn(r.Context())
	if r.Context().Err() != nil {
		h.logger.Info("action abandoned", "action", a, "error", err)
		return
	}

	var notice view.Notice
	status := http.StatusOK
	if err != nil {
		notice = view.Failure(a, err)
		status = statusFor(err)
		h.logger.Info("action rejected", "action", a, "status", status, "error", err)
	} else {
		notice = view.Success(a, email)
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage(websocket.TypeNotice, 0, notice))
	}
	writeJSON(w, status, map[string]any{"notice": notice})
}

// statusFor maps controller and gateway errors to HTTP status codes.
func statusFor(err error) int {
	var ge *gateway.GatewayError
	switch {
	case errors.Is(err, syncer.ErrBusy), errors.Is(err, syncer.ErrActionInFlight):
		return http.StatusConflict
	case model.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, syncer.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &ge):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *DashboardHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
