// Package engine orchestrates the decay/lifecycle core: the periodic
// maintenance batch, item creation and reclassification through the
// classification gateway, and gauge refreshes for the metrics exporter.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/quietfold/retain/internal/classify"
	"github.com/quietfold/retain/internal/config"
	"github.com/quietfold/retain/internal/lifecycle"
	"github.com/quietfold/retain/internal/metrics"
	"github.com/quietfold/retain/internal/store"
)

// ErrRunInProgress is returned when a maintenance run is requested while
// another is still executing. The new request is rejected, not queued.
var ErrRunInProgress = errors.New("maintenance run already in progress")

// Storage is the persistence boundary the engine drives. *store.DB is the
// production implementation; tests substitute failure-injecting wrappers.
type Storage interface {
	Ping() error
	CreateItem(item *store.MemoryItem) error
	GetItem(id string) (*store.MemoryItem, error)
	ListCandidates(afterID string, limit int) ([]store.MemoryItem, string, error)
	CountCandidates() (int, error)
	WriteDecayAndState(id string, decayScore float64, state lifecycle.State, reactivationCount int) error
	ApplyClassification(id string, importance, confidence float64, needsReview, needsReclassify bool) error
	AggregateSnapshot() (*store.Snapshot, error)
	LastRunAt() (*int64, error)
	SetLastRunAt(ms int64) error
}

// Engine ties storage, the classification gateway, and metrics together.
type Engine struct {
	DB      Storage
	Gateway *classify.Gateway
	Metrics *metrics.Metrics

	cfg    config.Config
	runMu  sync.Mutex // held for the duration of one maintenance run
	stopCh chan struct{}
}

// New creates a new Engine. gateway and m may be nil (classification then
// falls back to defaults and metrics emission is skipped).
func New(db Storage, gateway *classify.Gateway, m *metrics.Metrics, cfg config.Config) *Engine {
	return &Engine{
		DB:      db,
		Gateway: gateway,
		Metrics: m,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
}

// CreateItem stores a new knowledge item, classifying its importance once at
// creation. The gateway's fallback semantics mean this never fails on oracle
// trouble; only storage errors surface.
func (e *Engine) CreateItem(ctx context.Context, category, content string) (*store.MemoryItem, error) {
	item := &store.MemoryItem{
		Category:   category,
		Content:    content,
		Importance: e.cfg.Classify.DefaultImportance,
	}

	if e.Gateway != nil {
		res := e.Gateway.Classify(ctx, content, e.cfg.Classify.DefaultImportance)
		item.Importance = res.Importance
		item.Confidence = res.Confidence
		item.NeedsReview = res.Flagged
		item.NeedsReclassify = res.Deferred
	}

	if err := e.DB.CreateItem(item); err != nil {
		return nil, err
	}
	e.RefreshMetrics()
	return item, nil
}

// Reclassify re-runs importance classification for an existing item and
// folds the result into its importance fields. The low-confidence band
// blends with the item's current importance rather than replacing it.
func (e *Engine) Reclassify(ctx context.Context, id string) (*classify.Result, error) {
	if e.Gateway == nil {
		return nil, fmt.Errorf("no classification gateway configured")
	}

	item, err := e.DB.GetItem(id)
	if err != nil {
		return nil, err
	}

	res := e.Gateway.Classify(ctx, item.Content, item.Importance)
	if err := e.DB.ApplyClassification(id, res.Importance, res.Confidence, res.Flagged, res.Deferred); err != nil {
		return nil, err
	}
	e.RefreshMetrics()
	return &res, nil
}

// StartMaintenanceTimer runs maintenance once at startup and then on the
// configured interval until Stop is called.
func (e *Engine) StartMaintenanceTimer() {
	runOnce := func() {
		ctx := context.Background()
		run, err := e.RunMaintenance(ctx)
		if err != nil && !errors.Is(err, ErrRunInProgress) {
			log.Printf("maintenance: %v", err)
		}
		if run != nil {
			log.Printf("maintenance: run %s %s (%d processed, %d failed, %d deferred, %s)",
				run.ID, run.Status, run.ItemsProcessed, run.ItemsFailed, run.ItemsDeferred,
				run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
		}
	}

	runOnce()

	go func() {
		ticker := time.NewTicker(e.cfg.Maintenance.Interval.Std())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runOnce()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
