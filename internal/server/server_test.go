package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gkobilansky/moment-meter/internal/engine"
	"github.com/gkobilansky/moment-meter/internal/server"
	"github.com/gkobilansky/moment-meter/internal/store"
)

const testToken = "secret123"

func setupServer(t *testing.T) *server.Server {
	t.Helper()

	s, err := store.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	e := engine.New()
	t.Cleanup(e.Close)

	return server.New(e, s, server.Options{Token: testToken})
}

func do(t *testing.T, srv *server.Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.HasPrefix(target, "/v1/") && !strings.HasPrefix(target, "/v1/interactions") && !strings.HasPrefix(target, "/v1/outcomes") {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[server.HealthResponse](t, w)
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.DBSizeBytes <= 0 {
		t.Errorf("expected positive db size, got %d", resp.DBSizeBytes)
	}
}

func TestIngestInteractions_SingleAndBatch(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/interactions",
		`{"moment_id":"hero","user_id":"u1","type":"view","timestamp":"2024-01-01T09:00:00Z"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on ingestion")
	}

	w = do(t, srv, http.MethodPost, "/v1/interactions", `[
		{"moment_id":"hero","user_id":"u2","type":"view","timestamp":"2024-01-01T09:00:00Z"},
		{"moment_id":"hero","user_id":"u2","type":"click","timestamp":"2024-01-01T09:01:00Z"}
	]`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", w.Code)
	}

	stats := srv.Engine().Effectiveness("hero")
	if stats.TotalViews != 2 || stats.TotalClicks != 1 {
		t.Errorf("expected 2 views and 1 click, got %d views %d clicks", stats.TotalViews, stats.TotalClicks)
	}
}

func TestIngest_InvalidJSON(t *testing.T) {
	srv := setupServer(t)

	for _, path := range []string{"/v1/interactions", "/v1/outcomes"} {
		w := do(t, srv, http.MethodPost, path, `{not json`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, w.Code)
		}
	}
}

func TestIngest_Preflight(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodOptions, "/v1/outcomes", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected CORS methods header")
	}
}

func TestEffectiveness(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodPost, "/v1/interactions", `[
		{"moment_id":"hero","user_id":"u1","type":"view"},
		{"moment_id":"hero","user_id":"u1","type":"click"}
	]`)
	do(t, srv, http.MethodPost, "/v1/outcomes", `{"moment_id":"hero","user_id":"u1","type":"conversion","value":50}`)

	w := do(t, srv, http.MethodGet, "/v1/moments/hero/effectiveness", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	stats := decode[engine.EffectivenessStats](t, w)
	if stats.ClickThroughRate != 100 {
		t.Errorf("expected CTR 100, got %f", stats.ClickThroughRate)
	}
	if stats.ConversionRate != 100 {
		t.Errorf("expected conversion rate 100, got %f", stats.ConversionRate)
	}
	if stats.RevenueAttribution != 50 {
		t.Errorf("expected revenue 50, got %f", stats.RevenueAttribution)
	}
}

func TestMoments(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodPost, "/v1/interactions", `[{"moment_id":"b","type":"view"},{"moment_id":"a","type":"view"}]`)

	w := do(t, srv, http.MethodGet, "/v1/moments", "")
	moments := decode[[]struct {
		MomentID     string `json:"moment_id"`
		Interactions int    `json:"interactions"`
	}](t, w)

	if len(moments) != 2 || moments[0].MomentID != "a" || moments[0].Interactions != 1 {
		t.Errorf("unexpected moments: %+v", moments)
	}
}

func TestFunnel_DefineGetAnalyze(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodGet, "/v1/funnels/checkout", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 before definition, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPut, "/v1/funnels/checkout", `{"steps":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for empty steps, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPut, "/v1/funnels/checkout", `{"steps":["cart","pay"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	do(t, srv, http.MethodPost, "/v1/interactions", `[
		{"moment_id":"m","user_id":"u1","type":"view","timestamp":"2024-01-01T09:00:00Z","metadata":{"step":"cart"}},
		{"moment_id":"m","user_id":"u2","type":"view","timestamp":"2024-01-01T09:00:00Z","metadata":{"step":"cart"}},
		{"moment_id":"m","user_id":"u1","type":"click","timestamp":"2024-01-01T09:05:00Z","metadata":{"step":"pay"}}
	]`)

	// No body: the stored definition is used
	w = do(t, srv, http.MethodPost, "/v1/funnels/checkout/analyze", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[struct {
		FunnelID string              `json:"funnel_id"`
		Steps    []engine.FunnelStep `json:"steps"`
	}](t, w)
	if len(resp.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(resp.Steps))
	}
	if resp.Steps[0].ConvertedUsers != 2 || resp.Steps[1].ConvertedUsers != 1 {
		t.Errorf("unexpected step conversions: %+v", resp.Steps)
	}

	w = do(t, srv, http.MethodPost, "/v1/funnels/unknown/analyze", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown funnel, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/v1/funnels/checkout/analyze", `{"start":"yesterday"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad start, got %d", w.Code)
	}
}

func TestABTest_SetupAndAnalyze(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/abtests", `{"moment_a":"a"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without moment_b, got %d", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/v1/abtests", `{"id":"hero-test","moment_a":"a","moment_b":"b","traffic_split":0.3}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	created := decode[engine.ABTest](t, w)
	if created.TrafficSplit != 0.3 || created.Winner != engine.WinnerInconclusive {
		t.Errorf("unexpected created test: %+v", created)
	}

	w = do(t, srv, http.MethodPost, "/v1/abtests/hero-test/analyze", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	analyzed := decode[engine.ABTest](t, w)
	if analyzed.State != engine.StateAnalyzed || analyzed.Version != 2 {
		t.Errorf("expected analyzed v2, got state %s version %d", analyzed.State, analyzed.Version)
	}

	w = do(t, srv, http.MethodPost, "/v1/abtests/missing/analyze", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/v1/abtests", "")
	if tests := decode[[]engine.ABTest](t, w); len(tests) != 1 {
		t.Errorf("expected 1 test, got %d", len(tests))
	}
}

func TestABTest_GeneratesID(t *testing.T) {
	srv := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/abtests", `{"moment_a":"a","moment_b":"b"}`)
	created := decode[engine.ABTest](t, w)
	if len(created.ID) != 36 {
		t.Errorf("expected a uuid id, got %q", created.ID)
	}
	if created.TrafficSplit != 0.5 {
		t.Errorf("expected default split 0.5, got %f", created.TrafficSplit)
	}
}

func TestJourneyAndPersonalization(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodPost, "/v1/interactions", `[
		{"moment_id":"m2","user_id":"u1","session_id":"s1","type":"click","timestamp":"2024-01-01T10:00:00Z","metadata":{"personalized":true}},
		{"moment_id":"m1","user_id":"u1","session_id":"s1","type":"view","timestamp":"2024-01-01T09:00:00Z"},
		{"moment_id":"m1","user_id":"u1","session_id":"s2","type":"view","timestamp":"2024-01-02T09:00:00Z"}
	]`)

	w := do(t, srv, http.MethodGet, "/v1/users/u1/journey?session=s1", "")
	journey := decode[[]struct {
		MomentID string `json:"moment_id"`
	}](t, w)
	if len(journey) != 2 || journey[0].MomentID != "m1" {
		t.Errorf("unexpected journey: %+v", journey)
	}

	w = do(t, srv, http.MethodGet, "/v1/users/nobody/journey", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}

	w = do(t, srv, http.MethodGet, "/v1/users/u1/personalization", "")
	report := decode[engine.PersonalizationReport](t, w)
	if report.PersonalizedCount != 1 || report.GenericCount != 2 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestCohorts(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodPost, "/v1/interactions", `[
		{"moment_id":"m","user_id":"u1","type":"view","timestamp":"2024-01-01T09:00:00Z"},
		{"moment_id":"m","user_id":"u1","type":"view","timestamp":"2024-01-09T09:00:00Z"}
	]`)

	w := do(t, srv, http.MethodGet, "/v1/cohorts?start=2024-01-01&end=2024-01-07&group_by=week", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	cohorts := decode[[]engine.Cohort](t, w)
	if len(cohorts) != 1 || cohorts[0].Key != "2024-W01" {
		t.Fatalf("unexpected cohorts: %+v", cohorts)
	}
	if cohorts[0].Retention[0].Retention != 100 {
		t.Errorf("expected week 1 retention 100, got %f", cohorts[0].Retention[0].Retention)
	}

	w = do(t, srv, http.MethodGet, "/v1/cohorts?group_by=day", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for bad group_by, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodGet, "/health", "")
	w := do(t, srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `moment_http_requests_total{route="/health",status="200"}`) {
		t.Error("expected request counter for /health")
	}
}

func TestDateOnlyEndIncludesWholeDay(t *testing.T) {
	srv := setupServer(t)

	do(t, srv, http.MethodPost, "/v1/interactions",
		`{"moment_id":"m","user_id":"u1","type":"view","timestamp":"2024-01-31T12:00:00Z","metadata":{"step":"cart"}}`)

	w := do(t, srv, http.MethodPost, "/v1/funnels/checkout/analyze", `{"steps":["cart"],"start":"2024-01-01","end":"2024-01-31"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	resp := decode[struct {
		Steps []engine.FunnelStep `json:"steps"`
	}](t, w)
	if len(resp.Steps) != 1 || resp.Steps[0].ConvertedUsers != 1 {
		t.Errorf("expected the end day's interaction to count, got %+v", resp.Steps)
	}

	w = do(t, srv, http.MethodGet, "/v1/cohorts?start=2024-01-01&end=2024-01-31&group_by=week", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	cohorts := decode[[]engine.Cohort](t, w)
	if len(cohorts) != 1 || cohorts[0].Key != "2024-W05" {
		t.Errorf("expected one cohort for the end day, got %+v", cohorts)
	}
}
