package engine

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quietfold/retain/internal/classify"
	"github.com/quietfold/retain/internal/config"
	"github.com/quietfold/retain/internal/metrics"
)

func TestCreateItemClassifiesOnce(t *testing.T) {
	db := testDB(t)
	mock := &classify.MockOracle{Verdict: &classify.Verdict{Importance: 0.9, Confidence: 0.95, Signals: []string{"llm"}}}
	gw := classify.NewGateway(mock, config.Default().Classify, nil)
	eng := New(db, gw, nil, testConfig())

	item, err := eng.CreateItem(context.Background(), "patterns", "always use WAL mode")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if len(mock.Calls) != 1 {
		t.Errorf("oracle called %d times, want 1", len(mock.Calls))
	}

	got, err := db.GetItem(item.ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Importance != 0.9 || got.Confidence != 0.95 {
		t.Errorf("importance/confidence = %v/%v, want 0.9/0.95", got.Importance, got.Confidence)
	}
}

func TestCreateItemWithOracleDown(t *testing.T) {
	db := testDB(t)
	mock := &classify.MockOracle{Err: errors.New("oracle offline")}
	gw := classify.NewGateway(mock, config.Default().Classify, nil)
	eng := New(db, gw, nil, testConfig())

	item, err := eng.CreateItem(context.Background(), "events", "deploy went fine")
	if err != nil {
		t.Fatalf("CreateItem should not fail on oracle trouble: %v", err)
	}

	got, _ := db.GetItem(item.ID)
	if got.Importance != 0.5 {
		t.Errorf("fallback importance = %v, want 0.5", got.Importance)
	}
	if got.Confidence != 0 {
		t.Errorf("fallback confidence = %v, want 0", got.Confidence)
	}
	if !got.NeedsReclassify {
		t.Error("fallback classification should defer re-classification")
	}
}

func TestReclassifyBlendsLowConfidence(t *testing.T) {
	db := testDB(t)
	mock := &classify.MockOracle{Verdict: &classify.Verdict{Importance: 0.9, Confidence: 0.95}}
	gw := classify.NewGateway(mock, config.Default().Classify, nil)
	eng := New(db, gw, nil, testConfig())

	item, err := eng.CreateItem(context.Background(), "patterns", "x")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	// Second opinion comes back with low confidence: blend with prior 0.9.
	mock.Verdict = &classify.Verdict{Importance: 0.1, Confidence: 0.2}
	res, err := eng.Reclassify(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if res.Importance != 0.5 { // (0.1 + 0.9) / 2
		t.Errorf("blended importance = %v, want 0.5", res.Importance)
	}

	got, _ := db.GetItem(item.ID)
	if got.Importance != 0.5 {
		t.Errorf("persisted importance = %v, want 0.5", got.Importance)
	}
	if !got.NeedsReclassify {
		t.Error("low-confidence reclassification should mark the item deferred")
	}
}

// scrapeMetrics returns the exposition text for assertions on gauge values.
func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestClassificationRefreshesGauges(t *testing.T) {
	db := testDB(t)
	m := metrics.New()
	mock := &classify.MockOracle{Verdict: &classify.Verdict{Importance: 0.9, Confidence: 0.95}}
	gw := classify.NewGateway(mock, config.Default().Classify, m)
	eng := New(db, gw, m, testConfig())

	item, err := eng.CreateItem(context.Background(), "patterns", "x")
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if body := scrapeMetrics(t, m); !strings.Contains(body, "retain_avg_importance 0.9") {
		t.Errorf("gauge not refreshed after create:\n%s", body)
	}

	// Low confidence blends 0.1 with the prior 0.9; the gauge must follow
	// without waiting for the next maintenance run.
	mock.Verdict = &classify.Verdict{Importance: 0.1, Confidence: 0.2}
	if _, err := eng.Reclassify(context.Background(), item.ID); err != nil {
		t.Fatalf("Reclassify: %v", err)
	}
	if body := scrapeMetrics(t, m); !strings.Contains(body, "retain_avg_importance 0.5") {
		t.Errorf("gauge stale after reclassify:\n%s", body)
	}
}

func TestReclassifyUnknownItem(t *testing.T) {
	db := testDB(t)
	gw := classify.NewGateway(&classify.MockOracle{}, config.Default().Classify, nil)
	eng := New(db, gw, nil, testConfig())

	if _, err := eng.Reclassify(context.Background(), "missing"); err == nil {
		t.Error("expected an error for an unknown item id")
	}
}
