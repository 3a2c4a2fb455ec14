package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quietfold/retain/internal/classify"
	"github.com/quietfold/retain/internal/config"
	"github.com/quietfold/retain/internal/engine"
	"github.com/quietfold/retain/internal/metrics"
	"github.com/quietfold/retain/internal/store"
)

func testServer(t *testing.T, oracle classify.Oracle) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	m := metrics.New()
	gw := classify.NewGateway(oracle, cfg.Classify, m)
	eng := engine.New(db, gw, m, cfg)
	return New(db, eng, m, cfg, "test-version")
}

func trustedOracle() *classify.MockOracle {
	return &classify.MockOracle{Verdict: &classify.Verdict{Importance: 0.9, Confidence: 0.95, Signals: []string{"llm"}}}
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var decoded map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, decoded
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t, trustedOracle())

	w, body := doJSON(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
}

func TestCreateAndGetItem(t *testing.T) {
	srv := testServer(t, trustedOracle())

	w, body := doJSON(t, srv, "POST", "/api/items", `{"category":"patterns","content":"use WAL mode"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %v", w.Code, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("no item id in response")
	}
	if body["importance"] != 0.9 {
		t.Errorf("importance = %v, want 0.9 (trusted verdict)", body["importance"])
	}

	w, body = doJSON(t, srv, "GET", "/api/items/"+id, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if body["state"] != "active" {
		t.Errorf("state = %v, want active", body["state"])
	}
	if body["decay_score"] != 1.0 {
		t.Errorf("decay_score = %v, want 1.0", body["decay_score"])
	}
	if body["display_score"] == nil {
		t.Error("missing display_score")
	}
}

func TestGetItemNotFound(t *testing.T) {
	srv := testServer(t, trustedOracle())

	w, _ := doJSON(t, srv, "GET", "/api/items/01HUNKNOWN", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTouchItem(t *testing.T) {
	srv := testServer(t, trustedOracle())

	_, body := doJSON(t, srv, "POST", "/api/items", `{"content":"x"}`)
	id := body["id"].(string)

	w, _ := doJSON(t, srv, "POST", "/api/items/"+id+"/touch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("touch status = %d", w.Code)
	}

	_, body = doJSON(t, srv, "GET", "/api/items/"+id, "")
	if body["access_count"] != 1.0 {
		t.Errorf("access_count = %v, want 1", body["access_count"])
	}
}

func TestReclassifyEndpoint(t *testing.T) {
	oracle := trustedOracle()
	srv := testServer(t, oracle)

	_, body := doJSON(t, srv, "POST", "/api/items", `{"content":"x"}`)
	id := body["id"].(string)

	oracle.Verdict = &classify.Verdict{Importance: 0.2, Confidence: 0.75}
	w, body := doJSON(t, srv, "POST", "/api/items/"+id+"/reclassify", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reclassify status = %d", w.Code)
	}
	if body["importance"] != 0.2 {
		t.Errorf("importance = %v, want 0.2", body["importance"])
	}
	if body["flagged"] != true {
		t.Error("mid-band verdict should be flagged")
	}
}

func TestMaintenanceRunEndpoint(t *testing.T) {
	srv := testServer(t, trustedOracle())

	for i := 0; i < 3; i++ {
		doJSON(t, srv, "POST", "/api/items", `{"content":"item"}`)
	}

	w, body := doJSON(t, srv, "POST", "/api/maintenance/run", "")
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d: %v", w.Code, body)
	}
	if body["status"] != "completed" {
		t.Errorf("run status = %v, want completed", body["status"])
	}
	if body["items_processed"] != 3.0 {
		t.Errorf("items_processed = %v, want 3", body["items_processed"])
	}
	if body["run_id"] == "" {
		t.Error("missing run_id")
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := testServer(t, trustedOracle())

	doJSON(t, srv, "POST", "/api/items", `{"category":"patterns","content":"a"}`)
	doJSON(t, srv, "POST", "/api/items", `{"category":"events","content":"b"}`)

	w, body := doJSON(t, srv, "GET", "/api/stats", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	if body["total"] != 2.0 {
		t.Errorf("total = %v, want 2", body["total"])
	}
	states := body["states"].(map[string]any)
	if states["active"] != 2.0 {
		t.Errorf("active count = %v, want 2", states["active"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, trustedOracle())

	doJSON(t, srv, "POST", "/api/items", `{"content":"x"}`)
	doJSON(t, srv, "POST", "/api/maintenance/run", "")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	text := w.Body.String()
	for _, want := range []string{
		"retain_maintenance_runs_total",
		"retain_items_processed_total",
		"retain_classifications_total",
		"retain_avg_decay_score",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
