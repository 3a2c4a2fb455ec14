package classify

import (
	"context"
	"log"
	"time"

	"github.com/quietfold/retain/internal/config"
)

// Confidence bands governing how much an oracle verdict is trusted.
const (
	trustConfidence = 0.85
	blendConfidence = 0.70
)

// Result is the gateway's answer. It is always usable: on oracle failure the
// fields hold the configured fallback with Confidence 0.
type Result struct {
	Importance    float64
	Confidence    float64
	SignalSources []string
	ElapsedMS     int64

	// Flagged marks a mid-band verdict for optional downstream review.
	Flagged bool
	// Deferred marks a low-band verdict whose item should be re-classified
	// later; the importance above is a 50/50 blend with the prior value.
	Deferred bool
	// Fallback reports that the oracle timed out or failed.
	Fallback bool
}

// Recorder receives classification observations. Implemented by
// metrics.Metrics; nil disables emission.
type Recorder interface {
	ObserveClassification(model, outcome string, seconds float64)
}

// Gateway applies timeout, confidence bands, and fallback around an Oracle.
// Safe for concurrent use up to the configured limit.
type Gateway struct {
	oracle   Oracle
	cfg      config.ClassifyConfig
	recorder Recorder
	sem      chan struct{}
}

// NewGateway wraps oracle with the gateway policy. recorder may be nil.
func NewGateway(oracle Oracle, cfg config.ClassifyConfig, recorder Recorder) *Gateway {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	return &Gateway{
		oracle:   oracle,
		cfg:      cfg,
		recorder: recorder,
		sem:      make(chan struct{}, limit),
	}
}

// Classify asks the oracle to score content, applying the confidence bands:
//
//	>= 0.85          trusted outright
//	0.70 .. 0.85     accepted, flagged for review
//	<  0.70          blended 50/50 with prior, deferred for re-classification
//
// priorImportance is the item's current importance (or the configured default
// at creation time), used for the low-band blend. Oracle failure never
// propagates: the caller always receives a usable Result.
func (g *Gateway) Classify(ctx context.Context, content string, priorImportance float64) Result {
	g.sem <- struct{}{}
	defer func() { <-g.sem }()

	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout.Std())
	defer cancel()

	verdict, err := g.oracle.Classify(callCtx, content)
	elapsed := time.Since(start)

	if err != nil || verdict == nil {
		if err != nil {
			log.Printf("classify: oracle failed: %v (using fallback importance %v)", err, g.cfg.DefaultImportance)
		}
		g.observe("fallback", elapsed)
		return Result{
			Importance:    g.cfg.DefaultImportance,
			Confidence:    0,
			SignalSources: []string{"default-fallback"},
			ElapsedMS:     elapsed.Milliseconds(),
			Deferred:      true,
			Fallback:      true,
		}
	}

	res := Result{
		Importance:    clamp01(verdict.Importance),
		Confidence:    clamp01(verdict.Confidence),
		SignalSources: verdict.Signals,
		ElapsedMS:     elapsed.Milliseconds(),
	}

	switch {
	case res.Confidence >= trustConfidence:
		g.observe("trusted", elapsed)
	case res.Confidence >= blendConfidence:
		res.Flagged = true
		g.observe("flagged", elapsed)
	default:
		res.Importance = clamp01((res.Importance + priorImportance) / 2)
		res.Deferred = true
		g.observe("blended", elapsed)
	}
	return res
}

func (g *Gateway) observe(outcome string, elapsed time.Duration) {
	if g.recorder == nil {
		return
	}
	g.recorder.ObserveClassification(g.cfg.Model, outcome, elapsed.Seconds())
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
