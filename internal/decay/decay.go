// Package decay implements the point-in-time freshness scoring for memory
// items. All functions here are pure: no I/O, no mutation, callable from the
// maintenance batch and from read-time display layers alike.
package decay

import (
	"math"
	"time"

	"github.com/quietfold/retain/internal/config"
)

// Item carries the per-item attributes the scoring formula reads. Callers
// populate it from their own record type; the engine never sees storage.
type Item struct {
	Importance     float64
	Stability      float64
	DecayScore     float64
	CreatedAt      time.Time
	LastAccessedAt *time.Time
}

// refTime returns the timestamp decay is measured from: last access when
// present and sane, created_at otherwise. A last access before creation is
// treated as malformed and ignored.
func refTime(item Item) time.Time {
	if item.LastAccessedAt != nil && !item.LastAccessedAt.IsZero() &&
		!item.LastAccessedAt.Before(item.CreatedAt) {
		return *item.LastAccessedAt
	}
	return item.CreatedAt
}

// ElapsedDays returns the days since the item's reference time, clamped to
// >= 0 to defend against clock skew.
func ElapsedDays(item Item, now time.Time) float64 {
	days := now.Sub(refTime(item)).Hours() / 24.0
	if days < 0 {
		return 0
	}
	return days
}

// EffectiveHalfLife returns the half-life in days after stability adjustment.
// Stability is capped at cfg.MaxStability so the half-life stays bounded.
// The result is always >= BaseHalfLifeDays, so the exponent below never
// divides by zero.
func EffectiveHalfLife(stability float64, cfg config.DecayConfig) float64 {
	if stability < 0 {
		stability = 0
	}
	if stability > cfg.MaxStability {
		stability = cfg.MaxStability
	}
	return cfg.BaseHalfLifeDays * (1 + cfg.StabilityWeight*stability)
}

// Compute returns the decay score for item at the given instant.
//
//	raw   = 0.5 ^ (elapsed_days / effective_half_life)
//	score = raw + importance_weight * importance * (1 - raw)
//
// The importance term floors the score so high-importance items never
// collapse to zero. The result is clamped to [0, 1].
func Compute(item Item, now time.Time, cfg config.DecayConfig) float64 {
	elapsed := ElapsedDays(item, now)
	halfLife := EffectiveHalfLife(item.Stability, cfg)

	raw := math.Pow(0.5, elapsed/halfLife)

	importance := clamp01(item.Importance)
	score := raw + cfg.ImportanceWeight*importance*(1-raw)
	return clamp01(score)
}

// RecencyFactor is the recency term of the relevance weight: a pure
// exponential over the base half-life, ignoring stability so two items with
// the same access time always score the same recency.
func RecencyFactor(item Item, now time.Time, cfg config.DecayConfig) float64 {
	return math.Pow(0.5, ElapsedDays(item, now)/cfg.BaseHalfLifeDays)
}

// RelevanceWeight fuses a search similarity with the item's last persisted
// decay score, importance and recency:
//
//	weight = similarity * (w1*decay_score + w2*importance + w3*recency)
//
// Deterministic and per-item: no cross-item normalization, so it can be
// applied in a single pass in any order.
func RelevanceWeight(similarity float64, item Item, now time.Time, cfg config.DecayConfig) float64 {
	blend := cfg.RelevanceDecay*clamp01(item.DecayScore) +
		cfg.RelevanceImportance*clamp01(item.Importance) +
		cfg.RelevanceRecency*RecencyFactor(item, now, cfg)
	return similarity * blend
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
