package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/quietfold/retain/internal/decay"
	"github.com/quietfold/retain/internal/lifecycle"
	"github.com/quietfold/retain/internal/store"
)

// RunStatus is the terminal status of a maintenance run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
)

// Run records one maintenance batch. Ephemeral: surfaced through logs and
// metrics, never persisted.
type Run struct {
	ID             string    `json:"run_id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	ItemsProcessed int       `json:"items_processed"`
	ItemsFailed    int       `json:"items_failed"`
	ItemsDeferred  int       `json:"items_deferred"`
	Status         RunStatus `json:"status"`
}

// RunMaintenance executes one batch pass: stream candidate pages, recompute
// decay and lifecycle state per item, write back, then refresh the metrics
// gauges from storage.
//
// Runs are globally singleton: a second invocation while one is executing
// returns ErrRunInProgress. Per-item failures are counted and logged but
// never abort the batch; only storage being unreachable up front yields a
// failed run. When the wall-clock budget expires, remaining items are
// deferred to the next invocation.
func (e *Engine) RunMaintenance(ctx context.Context) (*Run, error) {
	if !e.runMu.TryLock() {
		log.Printf("maintenance: run skipped, another run is in progress")
		return nil, ErrRunInProgress
	}
	defer e.runMu.Unlock()

	run := &Run{
		ID:        store.NewItemID(),
		StartedAt: time.Now(),
		Status:    StatusRunning,
	}

	if err := e.DB.Ping(); err != nil {
		run.Status = StatusFailed
		run.CompletedAt = time.Now()
		e.observeRun(run)
		return run, fmt.Errorf("storage unavailable: %w", err)
	}

	// Watermark of the previous run; access events after it count as
	// "accessed since last run". Zero when no run has happened yet, so any
	// recorded access reactivates.
	var prevRunMs int64
	if wm, err := e.DB.LastRunAt(); err != nil {
		log.Printf("maintenance: read watermark: %v (treating all accesses as new)", err)
	} else if wm != nil {
		prevRunMs = *wm
	}

	total, err := e.DB.CountCandidates()
	if err != nil {
		run.Status = StatusFailed
		run.CompletedAt = time.Now()
		e.observeRun(run)
		return run, fmt.Errorf("count candidates: %w", err)
	}

	budget, cancel := context.WithTimeout(ctx, e.cfg.Maintenance.RunBudget.Std())
	defer cancel()

	var processed, failed atomic.Int64
	now := time.Now()

	token := ""
	overBudget := false
pageLoop:
	for {
		select {
		case <-budget.Done():
			overBudget = true
			break pageLoop
		default:
		}

		items, next, err := e.DB.ListCandidates(token, e.cfg.Maintenance.PageSize)
		if err != nil {
			if processed.Load() == 0 && failed.Load() == 0 {
				run.Status = StatusFailed
				run.CompletedAt = time.Now()
				e.observeRun(run)
				return run, fmt.Errorf("list candidates: %w", err)
			}
			// Mid-run page failure: defer the rest rather than abort.
			log.Printf("maintenance: list candidates after %q: %v (deferring remainder)", token, err)
			break
		}
		if len(items) == 0 {
			break
		}

		g, _ := errgroup.WithContext(budget)
		g.SetLimit(e.cfg.Maintenance.Workers)
		for i := range items {
			item := items[i]
			g.Go(func() error {
				switch err := e.processItem(budget, item, now, prevRunMs); {
				case err == nil:
					processed.Add(1)
				case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
					// Budget expired mid-write: the item is deferred to the
					// next run, not failed.
				default:
					log.Printf("maintenance: item %s: %v", item.ID, err)
					failed.Add(1)
				}
				return nil
			})
		}
		g.Wait()

		if next == "" {
			break
		}
		token = next
	}

	run.ItemsProcessed = int(processed.Load())
	run.ItemsFailed = int(failed.Load())
	if remaining := total - run.ItemsProcessed - run.ItemsFailed; remaining > 0 {
		run.ItemsDeferred = remaining
	}
	if overBudget {
		log.Printf("maintenance: run %s exceeded budget, %d items deferred", run.ID, run.ItemsDeferred)
	}

	if err := e.DB.SetLastRunAt(run.StartedAt.UnixMilli()); err != nil {
		log.Printf("maintenance: persist watermark: %v", err)
	}

	switch {
	case run.ItemsFailed > 0 || run.ItemsDeferred > 0:
		run.Status = StatusPartial
	default:
		run.Status = StatusCompleted
	}
	run.CompletedAt = time.Now()

	e.observeRun(run)
	e.RefreshMetrics()
	return run, nil
}

// processItem recomputes one item's decay score and lifecycle state and
// writes both back as a single update.
func (e *Engine) processItem(ctx context.Context, item store.MemoryItem, now time.Time, prevRunMs int64) error {
	score := decay.Compute(toDecayItem(item), now, e.cfg.Decay)

	hadAccess := item.LastAccessedAt != nil && *item.LastAccessedAt > prevRunMs

	var daysSinceArchived float64
	if item.State == lifecycle.Archived && item.ArchivedAt != nil {
		daysSinceArchived = float64(now.UnixMilli()-*item.ArchivedAt) / float64(24*time.Hour/time.Millisecond)
		if daysSinceArchived < 0 {
			daysSinceArchived = 0
		}
	}

	decision := lifecycle.Transition(item.State, score, hadAccess, daysSinceArchived, lifecycle.Thresholds{
		ActiveMinScore:        e.cfg.Lifecycle.ActiveMinScore,
		StableMinScore:        e.cfg.Lifecycle.StableMinScore,
		DormantMinScore:       e.cfg.Lifecycle.DormantMinScore,
		ArchivePurgeAfterDays: e.cfg.Lifecycle.ArchivePurgeAfterDays,
	})

	reactivations := item.ReactivationCount
	if decision.Reactivated != lifecycle.NoReactivation {
		reactivations++
	}

	write := func() error {
		return e.DB.WriteDecayAndState(item.ID, score, decision.State, reactivations)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	if err := backoff.Retry(write, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(e.cfg.Maintenance.WriteRetries)), ctx)); err != nil {
		return fmt.Errorf("write back: %w", err)
	}

	// Count the reactivation only after its write landed.
	if decision.Reactivated != lifecycle.NoReactivation && e.Metrics != nil {
		e.Metrics.ObserveReactivation(decision.Reactivated)
	}
	if decision.State == lifecycle.Purged && item.State != lifecycle.Purged {
		log.Printf("maintenance: item %s purged (archived %v days)", item.ID, int(daysSinceArchived))
	}
	return nil
}

// RefreshMetrics recomputes the gauge snapshot from storage. Failures are
// logged and swallowed: observability must never fail the run it observes.
func (e *Engine) RefreshMetrics() {
	if e.Metrics == nil {
		return
	}
	snap, err := e.DB.AggregateSnapshot()
	if err != nil {
		log.Printf("maintenance: metrics refresh: %v", err)
		return
	}
	e.Metrics.Refresh(snap)
}

func (e *Engine) observeRun(run *Run) {
	if e.Metrics == nil {
		return
	}
	e.Metrics.ObserveRun(string(run.Status), run.ItemsProcessed, run.ItemsFailed,
		run.CompletedAt.Sub(run.StartedAt).Seconds())
}

// toDecayItem adapts the stored millisecond timestamps to the scoring
// engine's input.
func toDecayItem(item store.MemoryItem) decay.Item {
	d := decay.Item{
		Importance: item.Importance,
		Stability:  item.Stability,
		DecayScore: item.DecayScore,
		CreatedAt:  time.UnixMilli(item.CreatedAt),
	}
	if item.LastAccessedAt != nil {
		t := time.UnixMilli(*item.LastAccessedAt)
		d.LastAccessedAt = &t
	}
	return d
}
