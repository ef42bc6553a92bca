package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AiryPlays/roblox-ranking-system/internal/catalog"
	"github.com/AiryPlays/roblox-ranking-system/internal/dedup"
	"github.com/AiryPlays/roblox-ranking-system/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *metrics.Metrics, *dedup.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.yaml")
	content := "products:\n  - id: 100\n    name: Plus\n    type: GamePass\n    rank: 5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	seen := dedup.New(100)
	return NewServer(":0", m, seen, cat), m, seen
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}
}

func TestStats(t *testing.T) {
	s, m, seen := newTestServer(t)
	m.IncTransactionsProcessed()
	m.IncErrors()
	seen.Add("7-100-1700000000000")

	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Metrics     metrics.Snapshot `json:"metrics"`
		DedupSize   int              `json:"dedup_size"`
		CatalogSize int              `json:"catalog_size"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if body.Metrics.TransactionsProcessed != 1 || body.Metrics.Errors != 1 {
		t.Errorf("unexpected metrics: %+v", body.Metrics)
	}
	if body.DedupSize != 1 {
		t.Errorf("dedup_size = %d, want 1", body.DedupSize)
	}
	if body.CatalogSize != 1 {
		t.Errorf("catalog_size = %d, want 1", body.CatalogSize)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, m, _ := newTestServer(t)
	m.IncRankingsExecuted()

	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ranksystem_rankings_executed_total 1") {
		t.Error("expected rankings counter in prometheus exposition")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	s, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}
