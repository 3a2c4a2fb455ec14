package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quietfold/retain/internal/decay"
	"github.com/quietfold/retain/internal/engine"
	"github.com/quietfold/retain/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}

	item, err := s.engine.CreateItem(r.Context(), req.Category, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, itemView(item, time.Now(), s))
}

// handleGetItem returns the item with its last persisted decay score plus a
// display-time score computed on the fly. The display score never touches
// storage: read-time queries consult the persisted value, they do not
// trigger recomputation.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	item, err := s.db.GetItem(itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, itemView(item, time.Now(), s))
}

func itemView(item *store.MemoryItem, now time.Time, s *Server) map[string]any {
	var lastAccessed any
	if item.LastAccessedAt != nil {
		lastAccessed = *item.LastAccessedAt
	}

	display := decay.Compute(decayInput(item), now, s.cfg.Decay)

	return map[string]any{
		"id":                 item.ID,
		"category":           item.Category,
		"content":            item.Content,
		"importance":         item.Importance,
		"confidence":         item.Confidence,
		"stability":          item.Stability,
		"decay_score":        item.DecayScore,
		"display_score":      display,
		"state":              item.State.String(),
		"created_at":         item.CreatedAt,
		"last_accessed_at":   lastAccessed,
		"access_count":       item.AccessCount,
		"reactivation_count": item.ReactivationCount,
		"needs_review":       item.NeedsReview,
		"needs_reclassify":   item.NeedsReclassify,
	}
}

func decayInput(item *store.MemoryItem) decay.Item {
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

func (s *Server) handleTouchItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	if err := s.db.TouchItem(itemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "touched"})
}

func (s *Server) handleReclassify(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	res, err := s.engine.Reclassify(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"importance":       res.Importance,
		"confidence":       res.Confidence,
		"signal_sources":   res.SignalSources,
		"elapsed_ms":       res.ElapsedMS,
		"flagged":          res.Flagged,
		"needs_reclassify": res.Deferred,
		"fallback":         res.Fallback,
	})
}

// handleRunMaintenance triggers one maintenance run synchronously and
// returns its summary, or 409 when a run is already in progress.
func (s *Server) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.RunMaintenance(r.Context())
	if err != nil {
		if errors.Is(err, engine.ErrRunInProgress) {
			writeError(w, http.StatusConflict, "maintenance run already in progress")
			return
		}
		// A failed run still carries a summary worth returning.
		if run != nil {
			writeJSON(w, http.StatusInternalServerError, run)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.db.AggregateSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	states := map[string]int{}
	for _, sc := range snap.StateCounts {
		states[sc.State] += sc.Count
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":          snap.Total,
		"states":         states,
		"state_counts":   snap.StateCounts,
		"avg_decay":      snap.AvgDecay,
		"avg_importance": snap.AvgImportance,
		"avg_stability":  snap.AvgStability,
	})
}
