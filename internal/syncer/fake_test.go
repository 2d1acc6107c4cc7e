package syncer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/cvewatch/internal/model"
)

// fakeGateway is an in-memory backend. Hooks run before an operation
// returns and may block; fail injects an error per operation.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int
	hooks map[string]func(context.Context) error
	fail  map[string]error

	latest     model.DailySummary
	recent     []model.CveRecord
	bySeverity map[model.Severity][]model.CveRecord
	status     model.ScrapeStatus
	history    []model.DailySummary
	timeline   []model.TimelineEntry
	stats      model.TimelineStats
	config     model.EmailConfigStatus
	subs       []model.EmailSubscriber
	lastVisit  model.LastVisit
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:      make(map[string]int),
		hooks:      make(map[string]func(context.Context) error),
		fail:       make(map[string]error),
		recent:     []model.CveRecord{},
		bySeverity: make(map[model.Severity][]model.CveRecord),
		status:     model.ScrapeStatus{Status: model.ScrapeCompleted},
		history:    []model.DailySummary{},
		timeline:   []model.TimelineEntry{},
		subs:       []model.EmailSubscriber{},
	}
}

func (f *fakeGateway) setHook(op string, h func(context.Context) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[op] = h
}

func (f *fakeGateway) setFail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) record(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	hook := f.hooks[op]
	err := f.fail[op]
	f.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx); herr != nil {
			return herr
		}
	}
	return err
}

func (f *fakeGateway) FetchLatestSummary(ctx context.Context) (model.DailySummary, error) {
	if err := f.record(ctx, "FetchLatestSummary"); err != nil {
		return model.DailySummary{}, err
	}
	return f.latest, nil
}

func (f *fakeGateway) FetchRecentCves(ctx context.Context) ([]model.CveRecord, error) {
	if err := f.record(ctx, "FetchRecentCves"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent, nil
}

func (f *fakeGateway) FetchCvesBySeverity(ctx context.Context, sev model.Severity) ([]model.CveRecord, error) {
	if err := f.record(ctx, "FetchCvesBySeverity"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bySeverity[sev], nil
}

func (f *fakeGateway) FetchScrapeStatus(ctx context.Context) (model.ScrapeStatus, error) {
	if err := f.record(ctx, "FetchScrapeStatus"); err != nil {
		return model.ScrapeStatus{}, err
	}
	return f.status, nil
}

func (f *fakeGateway) FetchSummaryHistory(ctx context.Context) ([]model.DailySummary, error) {
	if err := f.record(ctx, "FetchSummaryHistory"); err != nil {
		return nil, err
	}
	return f.history, nil
}

func (f *fakeGateway) FetchTimeline(ctx context.Context, windowDays int) ([]model.TimelineEntry, error) {
	if err := f.record(ctx, "FetchTimeline"); err != nil {
		return nil, err
	}
	return f.timeline, nil
}

func (f *fakeGateway) FetchTimelineStats(ctx context.Context) (model.TimelineStats, error) {
	if err := f.record(ctx, "FetchTimelineStats"); err != nil {
		return model.TimelineStats{}, err
	}
	return f.stats, nil
}

func (f *fakeGateway) GenerateTimelineForToday(ctx context.Context) error {
	return f.record(ctx, "GenerateTimelineForToday")
}

func (f *fakeGateway) FetchEmailConfigStatus(ctx context.Context) (model.EmailConfigStatus, error) {
	if err := f.record(ctx, "FetchEmailConfigStatus"); err != nil {
		return model.EmailConfigStatus{}, err
	}
	return f.config, nil
}

// FetchEmailSubscribers answers with the list as it was when the request
// arrived, even if a hook holds the response back.
func (f *fakeGateway) FetchEmailSubscribers(ctx context.Context) ([]model.EmailSubscriber, error) {
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()
	if err := f.record(ctx, "FetchEmailSubscribers"); err != nil {
		return nil, err
	}
	return subs, nil
}

func (f *fakeGateway) SubscribeEmail(ctx context.Context, email string) (model.EmailSubscriber, error) {
	if err := f.record(ctx, "SubscribeEmail"); err != nil {
		return model.EmailSubscriber{}, err
	}
	sub := model.EmailSubscriber{ID: "sub-" + email, Email: email, Active: true}
	f.mu.Lock()
	f.subs = append(append([]model.EmailSubscriber{}, f.subs...), sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeGateway) UnsubscribeEmail(ctx context.Context, email string) error {
	if err := f.record(ctx, "UnsubscribeEmail"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := []model.EmailSubscriber{}
	for _, s := range f.subs {
		if s.Email != email {
			kept = append(kept, s)
		}
	}
	f.subs = kept
	return nil
}

func (f *fakeGateway) SendTestEmail(ctx context.Context, email string) error {
	return f.record(ctx, "SendTestEmail")
}

func (f *fakeGateway) TriggerManualScrape(ctx context.Context) error {
	return f.record(ctx, "TriggerManualScrape")
}

func (f *fakeGateway) RecordVisit(ctx context.Context, sessionID string) error {
	return f.record(ctx, "RecordVisit")
}

func (f *fakeGateway) FetchLastVisit(ctx context.Context, sessionID string) (model.LastVisit, error) {
	if err := f.record(ctx, "FetchLastVisit"); err != nil {
		return model.LastVisit{}, err
	}
	return f.lastVisit, nil
}

type staticSession string

func (s staticSession) GetOrCreateSessionID(ctx context.Context) (string, error) {
	return string(s), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, gw *fakeGateway) *Controller {
	t.Helper()
	c := New(gw, staticSession("user_1_abcdefghi"), Config{}, discardLogger())
	t.Cleanup(c.Close)
	return c
}

// waitFor polls the snapshot until cond holds or the deadline passes.
func waitFor(t *testing.T, c *Controller, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := c.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// loadSettled runs Load and waits for the background visit tracking to
// finish so call counts are stable.
func loadSettled(t *testing.T, c *Controller) Snapshot {
	t.Helper()
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return waitFor(t, c, "last visit", func(s Snapshot) bool {
		return s.LastVisit.Phase == PhasePopulated || s.LastVisit.Phase == PhaseStaleError
	})
}

// gate blocks a hook until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hook(ctx context.Context) error {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gated call")
	}
}
