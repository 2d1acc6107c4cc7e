package syncer

import (
	"context"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/model"
	"golang.org/x/sync/errgroup"
)

// beginRead marks a slice Loading and returns the read's sequence number.
func beginRead[T any](c *Controller, slice func(*Snapshot) *Slice[T]) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	seq := slice(&c.snap).begin()
	c.changedLocked()
	return seq, nil
}

// settleRead applies a read result unless the controller was closed or a
// newer read of the same slice has started since. A read that failed
// because its caller's context ended is abandoned rather than recorded.
func settleRead[T any](ctx context.Context, c *Controller, name string, slice func(*Snapshot) *Slice[T], seq uint64, v T, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err != nil && ctx.Err() != nil {
		if slice(&c.snap).abandon(seq) {
			c.logger.Debug("abandoned read", "slice", name, "seq", seq)
			c.changedLocked()
		}
		return
	}
	if !slice(&c.snap).settle(seq, v, err, c.now()) {
		c.logger.Debug("discarded stale read", "slice", name, "seq", seq)
		return
	}
	if err != nil {
		c.logger.Warn("read failed", "slice", name, "error", err)
	}
	c.changedLocked()
}

// read runs one slice read through Loading to Populated or Stale-Error.
func read[T any](ctx context.Context, c *Controller, name string, slice func(*Snapshot) *Slice[T], fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	seq, err := beginRead(c, slice)
	if err != nil {
		return zero, err
	}
	v, err := fetch(ctx)
	settleRead(ctx, c, name, slice, seq, v, err)
	return v, err
}

func latestSummary(s *Snapshot) *Slice[model.DailySummary]    { return &s.LatestSummary }
func recentCves(s *Snapshot) *Slice[[]model.CveRecord]        { return &s.RecentCves }
func scrapeStatus(s *Snapshot) *Slice[model.ScrapeStatus]     { return &s.ScrapeStatus }
func summaryHistory(s *Snapshot) *Slice[[]model.DailySummary] { return &s.SummaryHistory }
func timeline(s *Snapshot) *Slice[[]model.TimelineEntry]      { return &s.Timeline }
func timelineStats(s *Snapshot) *Slice[model.TimelineStats]   { return &s.TimelineStats }
func emailConfig(s *Snapshot) *Slice[model.EmailConfigStatus] { return &s.EmailConfig }
func subscribers(s *Snapshot) *Slice[[]model.EmailSubscriber] { return &s.Subscribers }
func lastVisit(s *Snapshot) *Slice[model.LastVisit]           { return &s.LastVisit }

// readCves reloads the CVE list for the selected facet. The facet is read
// under the same lock that stamps the sequence, so a concurrent severity
// change always wins over an older reload.
func (c *Controller) readCves(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	facet := c.snap.SelectedSeverity
	seq := c.snap.RecentCves.begin()
	c.changedLocked()
	c.mu.Unlock()

	v, err := filter.Fetch(ctx, c.gw, facet)
	settleRead(ctx, c, SliceRecentCves, recentCves, seq, v, err)
	return err
}

func (c *Controller) readSubscribers(ctx context.Context) error {
	_, err := read(ctx, c, SliceSubscribers, subscribers, c.gw.FetchEmailSubscribers)
	return err
}

func (c *Controller) readTimeline(ctx context.Context) error {
	_, err := read(ctx, c, SliceTimeline, timeline, func(ctx context.Context) ([]model.TimelineEntry, error) {
		return c.gw.FetchTimeline(ctx, c.cfg.TimelineDays)
	})
	return err
}

func (c *Controller) readTimelineStats(ctx context.Context) error {
	_, err := read(ctx, c, SliceTimelineStats, timelineStats, c.gw.FetchTimelineStats)
	return err
}

// Load performs the initial bulk load: it resolves the session, tracks the
// visit in the background, then synchronizes every slice. Individual read
// failures are isolated in their slices and do not fail Load.
func (c *Controller) Load(ctx context.Context) error {
	release, err := c.acquire(ActionBulkLoad)
	if err != nil {
		return err
	}
	defer release()

	ctx, done := c.scope(ctx)
	defer done()

	c.trackVisit(ctx)
	return c.syncAll(ctx)
}

// trackVisit records the visit and fetches the previous one without
// blocking the caller. Failures are logged only.
func (c *Controller) trackVisit(ctx context.Context) {
	if c.sessions == nil {
		return
	}
	sessionID, err := c.sessions.GetOrCreateSessionID(ctx)
	if err != nil {
		c.logger.Warn("resolve session id", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snap.SessionID = sessionID
	c.changedLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		ctx, done := c.scope(context.Background())
		defer done()

		if err := c.gw.RecordVisit(ctx, sessionID); err != nil {
			c.logger.Warn("record visit", "error", err)
		}
		read(ctx, c, SliceLastVisit, lastVisit, func(ctx context.Context) (model.LastVisit, error) {
			return c.gw.FetchLastVisit(ctx, sessionID)
		})
	}()
}

// syncAll issues the primary reads concurrently and waits for all of them
// to settle before any secondary read starts.
func (c *Controller) syncAll(ctx context.Context) error {
	var (
		primary errgroup.Group
		config  model.EmailConfigStatus
		cfgErr  error
	)
	primary.Go(func() error {
		_, err := read(ctx, c, SliceLatestSummary, latestSummary, c.gw.FetchLatestSummary)
		return err
	})
	primary.Go(func() error {
		return c.readCves(ctx)
	})
	primary.Go(func() error {
		_, err := read(ctx, c, SliceScrapeStatus, scrapeStatus, c.gw.FetchScrapeStatus)
		return err
	})
	primary.Go(func() error {
		_, err := read(ctx, c, SliceSummaryHistory, summaryHistory, c.gw.FetchSummaryHistory)
		return err
	})
	primary.Go(func() error {
		return c.readTimeline(ctx)
	})
	primary.Go(func() error {
		config, cfgErr = read(ctx, c, SliceEmailConfig, emailConfig, c.gw.FetchEmailConfigStatus)
		return cfgErr
	})
	if err := primary.Wait(); err != nil {
		c.logger.Warn("primary sync incomplete", "error", err)
	}
	if err := c.ended(ctx); err != nil {
		return err
	}

	var secondary errgroup.Group
	if cfgErr == nil && config.Configured {
		secondary.Go(func() error {
			return c.readSubscribers(ctx)
		})
	}
	secondary.Go(func() error {
		return c.readTimelineStats(ctx)
	})
	if err := secondary.Wait(); err != nil {
		c.logger.Warn("secondary sync incomplete", "error", err)
	}
	return nil
}
