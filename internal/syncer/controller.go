// Package syncer owns the client's synchronized state: it fans out reads
// against the backend, merges results into one Snapshot, and runs the user
// mutations that re-sync only the slices they affect.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/model"
)

var (
	// ErrActionInFlight rejects an action while the same action is running.
	ErrActionInFlight = errors.New("action already in flight")
	// ErrBusy rejects an exclusive action while any other action is running.
	ErrBusy = errors.New("sync in progress")
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("controller closed")
)

// Action names a registered controller operation.
type Action string

const (
	ActionBulkLoad         Action = "bulk_load"
	ActionManualScrape     Action = "manual_scrape"
	ActionSubscribe        Action = "subscribe"
	ActionUnsubscribe      Action = "unsubscribe"
	ActionSendTest         Action = "send_test"
	ActionSeverity         Action = "severity_change"
	ActionGenerateTimeline Action = "generate_timeline"
)

// exclusive actions refuse to start while anything else is in flight.
var exclusive = map[Action]bool{
	ActionBulkLoad:     true,
	ActionManualScrape: true,
}

// Gateway is the backend surface the controller drives.
type Gateway interface {
	filter.Source
	FetchLatestSummary(ctx context.Context) (model.DailySummary, error)
	FetchScrapeStatus(ctx context.Context) (model.ScrapeStatus, error)
	FetchSummaryHistory(ctx context.Context) ([]model.DailySummary, error)
	FetchTimeline(ctx context.Context, windowDays int) ([]model.TimelineEntry, error)
	FetchTimelineStats(ctx context.Context) (model.TimelineStats, error)
	GenerateTimelineForToday(ctx context.Context) error
	FetchEmailConfigStatus(ctx context.Context) (model.EmailConfigStatus, error)
	FetchEmailSubscribers(ctx context.Context) ([]model.EmailSubscriber, error)
	SubscribeEmail(ctx context.Context, email string) (model.EmailSubscriber, error)
	UnsubscribeEmail(ctx context.Context, email string) error
	SendTestEmail(ctx context.Context, email string) error
	TriggerManualScrape(ctx context.Context) error
	RecordVisit(ctx context.Context, sessionID string) error
	FetchLastVisit(ctx context.Context, sessionID string) (model.LastVisit, error)
}

// SessionSource resolves the anonymous session token.
type SessionSource interface {
	GetOrCreateSessionID(ctx context.Context) (string, error)
}

// Config holds controller settings.
type Config struct {
	TimelineDays    int
	RefreshInterval time.Duration
}

const DefaultTimelineDays = 14

type Controller struct {
	gw       Gateway
	sessions SessionSource
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	snap      Snapshot
	inFlight  map[Action]struct{}
	listeners map[chan struct{}]struct{}
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(gw Gateway, sessions SessionSource, cfg Config, logger *slog.Logger) *Controller {
	if cfg.TimelineDays <= 0 {
		cfg.TimelineDays = DefaultTimelineDays
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gw:        gw,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		snap:      Snapshot{SelectedSeverity: filter.FacetAll, InFlight: []Action{}},
		inFlight:  make(map[Action]struct{}),
		listeners: make(map[chan struct{}]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.InFlight = slices.Clone(c.snap.InFlight)
	return s
}

// Changes returns a channel that receives a signal after state changes.
// Signals coalesce: a receiver should read Snapshot for the latest state.
// The channel is closed by Close or by calling the returned stop function.
func (c *Controller) Changes() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.listeners[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.listeners[ch]; ok {
				delete(c.listeners, ch)
				close(ch)
			}
		})
	}
	return ch, stop
}

// Close cancels outstanding requests and detaches all listeners. No state
// change is published afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for ch := range c.listeners {
		delete(c.listeners, ch)
		close(ch)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// changedLocked bumps the version and signals listeners. Callers hold mu.
func (c *Controller) changedLocked() {
	c.snap.Version++
	for ch := range c.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// acquire registers a in the in-flight registry and raises IsSyncing. The
// returned release must run on every exit path.
func (c *Controller) acquire(a Action) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if _, ok := c.inFlight[a]; ok {
		return nil, ErrActionInFlight
	}
	if exclusive[a] && len(c.inFlight) > 0 {
		return nil, ErrBusy
	}
	for other := range c.inFlight {
		if exclusive[other] {
			return nil, ErrBusy
		}
	}

	c.inFlight[a] = struct{}{}
	c.syncFlagsLocked()
	c.changedLocked()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.inFlight, a)
			c.syncFlagsLocked()
			if !c.closed {
				c.changedLocked()
			}
		})
	}, nil
}

func (c *Controller) syncFlagsLocked() {
	actions := make([]Action, 0, len(c.inFlight))
	for a := range c.inFlight {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	c.snap.InFlight = actions
	c.snap.IsSyncing = len(actions) > 0
}

// scope derives a context that is cancelled with either the caller's
// context or the controller's.
func (c *Controller) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// ended reports why an operation's context is done: ErrClosed when the
// controller shut down, the caller's error otherwise.
func (c *Controller) ended(ctx context.Context) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	return ctx.Err()
}

// Start performs the initial load and, when a refresh interval is set,
// re-syncs everything on that interval until ctx ends or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		return err
	}
	if c.cfg.RefreshInterval <= 0 {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger.Debug("scheduled refresh skipped", "error", err)
				}
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			}
		}
	}()
	return nil
}
