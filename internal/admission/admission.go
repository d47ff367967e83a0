// Package admission implements the tick loop that promotes queued jobs to
// running transfers under a concurrency cap, per spec §4.4.
package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/essmehdi/flowd/internal/executor"
	"github.com/essmehdi/flowd/internal/store"
)

// TickInterval is the fixed admission tick, per spec §4.4.
const TickInterval = 500 * time.Millisecond

// Dispatcher is the subset of *executor.Executor the controller needs; a
// narrow interface keeps this package testable without a live executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, id int64)
}

type Controller struct {
	store     *store.Store
	dispatch  Dispatcher
	cfgSource executor.ConfigSource
	log       *slog.Logger
}

func New(st *store.Store, dispatch Dispatcher, cfgSource executor.ConfigSource, log *slog.Logger) *Controller {
	return &Controller{store: st, dispatch: dispatch, cfgSource: cfgSource, log: log}
}

// Run ticks until ctx is done. Each tick is read-then-dispatch: it never
// blocks on a transfer, so a race with a transfer that just moved a job to
// Starting may briefly push the in-progress count one over the cap — per
// spec §4.4, that is acceptable.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	cfg, err := c.cfgSource()
	if err != nil {
		c.log.Error("admission: failed to read configuration", "error", err)
		return
	}
	limit := cfg.MaxConcurrentDownloads
	if limit <= 0 {
		return
	}

	active, err := c.store.CountInProgress()
	if err != nil {
		c.log.Error("admission: failed to count in-progress jobs", "error", err)
		return
	}

	if int(active) >= limit {
		return
	}

	pending, err := c.store.GetPending()
	if err != nil {
		c.log.Error("admission: failed to list pending jobs", "error", err)
		return
	}

	slots := limit - int(active)
	for i := 0; i < len(pending) && slots > 0; i++ {
		c.dispatch.Dispatch(ctx, pending[i].ID)
		slots--
	}
}
