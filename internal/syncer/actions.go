package syncer

import (
	"context"

	"github.com/dukerupert/cvewatch/internal/filter"
	"github.com/dukerupert/cvewatch/internal/gateway"
	"golang.org/x/sync/errgroup"
)

// mutate runs the uniform mutation sequence: register the action, perform
// the backend call, and on success re-sync the affected slices. The
// registry entry is released on every path. Once the backend has accepted
// the call the re-sync runs on the controller's scope, so a caller that
// leaves mid-way still gets an error but shared state is refreshed.
func (c *Controller) mutate(ctx context.Context, a Action, call func(context.Context) error, resync func(context.Context) error) error {
	release, err := c.acquire(a)
	if err != nil {
		return err
	}
	defer release()

	ctx, done := c.scope(ctx)
	defer done()

	if err := call(ctx); err != nil {
		c.logger.Error("action failed", "action", a, "error", err)
		return err
	}
	if resync != nil {
		rctx, rdone := c.scope(context.WithoutCancel(ctx))
		if err := resync(rctx); err != nil {
			c.logger.Warn("re-sync after action failed", "action", a, "error", err)
		}
		rdone()
	}
	return c.ended(ctx)
}

// ManualScrape asks the backend to scrape now, then re-runs the full sync.
func (c *Controller) ManualScrape(ctx context.Context) error {
	return c.mutate(ctx, ActionManualScrape, c.gw.TriggerManualScrape, c.syncAll)
}

// Refresh re-runs the full sync without a backend mutation.
func (c *Controller) Refresh(ctx context.Context) error {
	release, err := c.acquire(ActionBulkLoad)
	if err != nil {
		return err
	}
	defer release()

	ctx, done := c.scope(ctx)
	defer done()
	return c.syncAll(ctx)
}

// Subscribe adds an email subscriber and reloads only the subscriber list.
// An empty address is rejected before any request is made.
func (c *Controller) Subscribe(ctx context.Context, email string) error {
	email, err := gateway.RequireEmail(email)
	if err != nil {
		return err
	}
	return c.mutate(ctx, ActionSubscribe, func(ctx context.Context) error {
		_, err := c.gw.SubscribeEmail(ctx, email)
		return err
	}, c.readSubscribers)
}

func (c *Controller) Unsubscribe(ctx context.Context, email string) error {
	email, err := gateway.RequireEmail(email)
	if err != nil {
		return err
	}
	return c.mutate(ctx, ActionUnsubscribe, func(ctx context.Context) error {
		return c.gw.UnsubscribeEmail(ctx, email)
	}, c.readSubscribers)
}

// SendTestEmail changes no client state, so nothing is re-synced.
func (c *Controller) SendTestEmail(ctx context.Context, email string) error {
	email, err := gateway.RequireEmail(email)
	if err != nil {
		return err
	}
	return c.mutate(ctx, ActionSendTest, func(ctx context.Context) error {
		return c.gw.SendTestEmail(ctx, email)
	}, nil)
}

// GenerateTimeline asks the backend to build today's entry and reloads the
// timeline and its stats. Duplicate suppression is the backend's job.
func (c *Controller) GenerateTimeline(ctx context.Context) error {
	return c.mutate(ctx, ActionGenerateTimeline, c.gw.GenerateTimelineForToday, func(ctx context.Context) error {
		var g errgroup.Group
		g.Go(func() error { return c.readTimeline(ctx) })
		g.Go(func() error { return c.readTimelineStats(ctx) })
		return g.Wait()
	})
}

// SelectSeverity switches the facet and reloads the CVE list with exactly
// one request. The facet and the read's sequence number are set together so
// an older reload can never overwrite this result.
func (c *Controller) SelectSeverity(ctx context.Context, f filter.Facet) error {
	facet, err := filter.ParseFacet(string(f))
	if err != nil {
		return err
	}
	release, err := c.acquire(ActionSeverity)
	if err != nil {
		return err
	}
	defer release()

	ctx, done := c.scope(ctx)
	defer done()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.snap.SelectedSeverity = facet
	seq := c.snap.RecentCves.begin()
	c.changedLocked()
	c.mu.Unlock()

	v, err := filter.Fetch(ctx, c.gw, facet)
	settleRead(ctx, c, SliceRecentCves, recentCves, seq, v, err)
	return err
}
