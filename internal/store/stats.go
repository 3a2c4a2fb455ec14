package store

import "fmt"

// StateCount is one cell of the per-state, per-category breakdown.
type StateCount struct {
	State    string `json:"state"`
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Snapshot holds aggregate health figures computed directly from storage.
// Total and the averages cover live items only; StateCounts deliberately
// keeps purged rows so the purged series stays visible in the gauges.
type Snapshot struct {
	Total         int          `json:"total"`
	StateCounts   []StateCount `json:"state_counts"`
	AvgDecay      float64      `json:"avg_decay"`
	AvgImportance float64      `json:"avg_importance"`
	AvgStability  float64      `json:"avg_stability"`
}

// AggregateSnapshot recomputes the aggregates from the current table state.
// The metrics exporter refreshes its gauges from this after every
// maintenance run rather than drifting them incrementally.
func (db *DB) AggregateSnapshot() (*Snapshot, error) {
	snap := &Snapshot{}

	err := db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(AVG(decay_score), 0),
		       COALESCE(AVG(importance), 0),
		       COALESCE(AVG(stability), 0)
		FROM mem_items WHERE state != 'purged'
	`).Scan(&snap.Total, &snap.AvgDecay, &snap.AvgImportance, &snap.AvgStability)
	if err != nil {
		return nil, fmt.Errorf("aggregate averages: %w", err)
	}

	rows, err := db.Query(`
		SELECT state, category, COUNT(*)
		FROM mem_items
		GROUP BY state, category
		ORDER BY state, category
	`)
	if err != nil {
		return nil, fmt.Errorf("aggregate state counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc StateCount
		if err := rows.Scan(&sc.State, &sc.Category, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		snap.StateCounts = append(snap.StateCounts, sc)
	}
	return snap, rows.Err()
}
