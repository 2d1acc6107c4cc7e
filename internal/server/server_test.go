package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/cvewatch/internal/database"
	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/syncer"
)

type fakeController struct {
	mu      sync.Mutex
	snap    syncer.Snapshot
	scrapes int
	err     error
	changes chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		snap:    syncer.Snapshot{SelectedSeverity: filter.FacetAll},
		changes: make(chan struct{}, 1),
	}
}

func (f *fakeController) Snapshot() syncer.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Changes() (<-chan struct{}, func()) { return f.changes, func() {} }

func (f *fakeController) Refresh(ctx context.Context) error { return nil }

func (f *fakeController) ManualScrape(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapes++
	return f.err
}

func (f *fakeController) SelectSeverity(ctx context.Context, facet filter.Facet) error { return nil }
func (f *fakeController) Subscribe(ctx context.Context, email string) error            { return nil }
func (f *fakeController) Unsubscribe(ctx context.Context, email string) error          { return nil }
func (f *fakeController) SendTestEmail(ctx context.Context, email string) error        { return nil }
func (f *fakeController) GenerateTimeline(ctx context.Context) error                   { return nil }

func setup(t *testing.T) (*Server, *fakeController) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctrl := newFakeController()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, ctrl, logger), ctrl
}

func TestHealth(t *testing.T) {
	srv, ctrl := setup(t)
	ctrl.snap.IsSyncing = true

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["syncing"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestRoutes(t *testing.T) {
	srv, _ := setup(t)
	router := srv.Router()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/api/state", http.StatusOK},
		{http.MethodGet, "/partials/dashboard", http.StatusOK},
		{http.MethodPost, "/actions/scrape", http.StatusOK},
		{http.MethodPost, "/actions/timeline/generate", http.StatusOK},
		{http.MethodPost, "/actions/refresh", http.StatusOK},
		{http.MethodGet, "/actions/scrape", http.StatusNotFound},
		{http.MethodGet, "/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestBusyActionReturnsConflict(t *testing.T) {
	srv, ctrl := setup(t)
	ctrl.err = syncer.ErrBusy

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/actions/scrape", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Operacja w toku") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestActionsAreRateLimited(t *testing.T) {
	srv, ctrl := setup(t)
	router := srv.Router()

	var last int
	for i := 0; i <= actionLimit.Requests; i++ {
		req := httptest.NewRequest(http.MethodPost, "/actions/scrape", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", last)
	}
	if ctrl.scrapes != actionLimit.Requests {
		t.Errorf("scrapes = %d, want %d", ctrl.scrapes, actionLimit.Requests)
	}
}

func TestRunFeedRelaysState(t *testing.T) {
	srv, ctrl := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.RunFeed(ctx)
		close(done)
	}()

	ctrl.mu.Lock()
	ctrl.snap.Version = 5
	ctrl.mu.Unlock()

	msg := stateMessage(ctrl)
	if msg.Type != "state_changed" || msg.Version != 5 {
		t.Errorf("state message = %+v", msg)
	}

	ctrl.changes <- struct{}{}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("feed did not stop")
	}
}
