package funnel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	apphttp "windowleads_backend/internal/http"
	"windowleads_backend/internal/qualification/dispatch"
	"windowleads_backend/internal/qualification/domain"
	"windowleads_backend/internal/qualification/machine"
	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/internal/session"
	"windowleads_backend/platform/httpkit"
	"windowleads_backend/platform/logger"
	"windowleads_backend/platform/metrics"
	"windowleads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testConfig struct{}

func (testConfig) GetSessionSecret() string           { return "funnel-test-secret" }
func (testConfig) GetSessionTTL() time.Duration       { return time.Hour }
func (testConfig) GetFunnelResetDelay() time.Duration { return 0 }
func (testConfig) GetPhoneRegion() string             { return "US" }
func (testConfig) GetFunnelIdleTTL() time.Duration    { return time.Minute }

type stubLeads struct {
	mu    sync.Mutex
	calls int
	last  ports.NewLead
}

func (s *stubLeads) CreateLead(_ context.Context, lead ports.NewLead) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = lead
	return "lead-1", nil
}

type stubDispatcher struct {
	mu  sync.Mutex
	got []domain.Completion
}

func (s *stubDispatcher) Dispatch(_ context.Context, c domain.Completion) dispatch.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, c)
	return dispatch.Outcome{Persisted: true}
}

type stubEmitter struct{}

func (stubEmitter) Emit(context.Context, string, map[string]any) error { return nil }

type testServer struct {
	engine     *gin.Engine
	leads      *stubLeads
	dispatcher *stubDispatcher
	metrics    *metrics.Metrics
	module     *Module
	token      string
}

func newTestServer() *testServer {
	ts := &testServer{
		leads:      &stubLeads{},
		dispatcher: &stubDispatcher{},
		metrics:    metrics.New(false),
	}
	ts.module = NewModule(Deps{
		Leads:      ts.leads,
		Sessions:   session.NewMemoryStore(),
		Dispatcher: ts.dispatcher,
		Emitter:    stubEmitter{},
		Validator:  validator.New(),
		Metrics:    ts.metrics,
		Log:        logger.Nop(),
	}, testConfig{})

	engine := gin.New()
	ts.module.RegisterRoutes(&apphttp.RouterContext{
		Engine:             engine,
		V1:                 engine.Group("/api/v1"),
		SessionMiddleware:  httpkit.FunnelSession(testConfig{}),
		RateLimiter:        httpkit.NewIPRateLimiter(rate.Inf, 1, nil),
		ContactRateLimiter: &httpkit.ContactRateLimiter{IPRateLimiter: httpkit.NewIPRateLimiter(rate.Inf, 1, nil)},
	})
	ts.engine = engine
	return ts
}

// do sends a request on the test session and decodes the state response.
func (ts *testServer) do(t *testing.T, method, path string, body any) (int, StateResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1/funnel"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set(httpkit.HeaderSessionToken, ts.token)
	}

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	if token := rec.Header().Get(httpkit.HeaderSessionToken); token != "" {
		ts.token = token
	}

	var resp StateResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec.Code, resp
}

func contactBody() map[string]any {
	return map[string]any{
		"firstName":   "Dana",
		"lastName":    "Reyes",
		"email":       "dana@example.com",
		"phone":       "201-555-0123",
		"attribution": map[string]string{"utm_source": "google"},
	}
}

func TestFunnelHappyPath(t *testing.T) {
	ts := newTestServer()

	steps := []struct {
		path string
		body any
		want domain.Step
	}{
		{"/open", nil, domain.StepCapture},
		{"/contact", contactBody(), domain.StepTimeline},
		{"/timeline", map[string]any{"value": "30days"}, domain.StepQuote},
		{"/quote", map[string]any{"value": "getting"}, domain.StepHomeowner},
		{"/homeowner", map[string]any{"value": true}, domain.StepWindowCount},
		{"/window-scope", map[string]any{"value": "whole_house"}, domain.StepResult},
	}

	var last StateResponse
	for _, s := range steps {
		code, resp := ts.do(t, http.MethodPost, s.path, s.body)
		if code != http.StatusOK {
			t.Fatalf("%s: status %d", s.path, code)
		}
		if resp.Step != s.want {
			t.Fatalf("%s: step %s, want %s", s.path, resp.Step, s.want)
		}
		last = resp
	}

	// 40 + 15 + 25 + 35
	if last.Result == nil || last.Result.Score != 115 || last.Result.Segment != domain.SegmentHot {
		t.Fatalf("unexpected result %+v", last.Result)
	}
	if len(ts.dispatcher.got) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(ts.dispatcher.got))
	}
	if ts.leads.last.Attribution["utm_source"] != "google" {
		t.Fatalf("expected attribution on the lead, got %v", ts.leads.last.Attribution)
	}
	if got := testutil.ToFloat64(ts.metrics.Qualified.WithLabelValues("HOT")); got != 1 {
		t.Fatalf("expected qualified counter 1, got %v", got)
	}

	code, state := ts.do(t, http.MethodGet, "/state", nil)
	if code != http.StatusOK || state.Step != domain.StepResult {
		t.Fatalf("expected result state, got %d %+v", code, state)
	}
}

func TestFunnelRejectsUnknownOption(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/open", nil)
	ts.do(t, http.MethodPost, "/contact", contactBody())

	if code, _ := ts.do(t, http.MethodPost, "/timeline", map[string]any{"value": "someday"}); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown timeline, got %d", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/timeline", map[string]any{}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing value, got %d", code)
	}
}

func TestFunnelRejectsOutOfOrderAnswer(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/open", nil)

	if code, _ := ts.do(t, http.MethodPost, "/window-scope", map[string]any{"value": "1_5"}); code != http.StatusConflict {
		t.Fatalf("expected 409 for answer at capture, got %d", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/back", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 for back at capture, got %d", code)
	}
}

func TestFunnelContactValidation(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/open", nil)

	body := contactBody()
	body["firstName"] = "D"
	if code, _ := ts.do(t, http.MethodPost, "/contact", body); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short first name, got %d", code)
	}
	if ts.leads.calls != 0 {
		t.Fatalf("invalid contact must not create a lead")
	}
}

func TestFunnelCloseResetsFinishedFlow(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/open", nil)
	ts.do(t, http.MethodPost, "/contact", contactBody())

	code, resp := ts.do(t, http.MethodPost, "/close", nil)
	if code != http.StatusOK || resp.Open {
		t.Fatalf("expected closed flow, got %d %+v", code, resp)
	}

	// Zero reset delay clears at once; the stored lead re-enters at timeline.
	_, resp = ts.do(t, http.MethodPost, "/open", nil)
	if resp.Step != domain.StepTimeline || resp.LeadID != "lead-1" {
		t.Fatalf("expected returning entry at timeline, got %+v", resp)
	}
}

func TestRegistrySweepEvictsIdleSessions(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	created := 0
	r := NewRegistry(func(string) *machine.Machine {
		created++
		return machine.New(machine.Deps{Session: session.NewMemoryStore().For("x")}, machine.Options{})
	}, time.Minute, nil)
	r.now = func() time.Time { return now }

	a := r.Get("a")
	if r.Get("a") != a || created != 1 {
		t.Fatalf("expected the same machine for one session")
	}
	r.Get("b")

	now = now.Add(45 * time.Second)
	r.Get("b")
	now = now.Add(30 * time.Second)

	if evicted := r.Sweep(); evicted != 1 {
		t.Fatalf("expected one eviction, got %d", evicted)
	}
	if r.Len() != 1 {
		t.Fatalf("expected session b to remain, got %d flows", r.Len())
	}
}

func TestContactRequestCleansAttribution(t *testing.T) {
	req := ContactRequest{
		FirstName: "<b>Dana</b>",
		LastName:  " Reyes ",
		Attribution: map[string]string{
			"utm_source":      "<script>x</script>google",
			"utm_campaign":    string(make([]byte, 600)),
			"<i>utm_term</i>": "windows",
			"<br>":            "dropped",
		},
	}
	req.Attribution[strings.Repeat("k", 100)] = "long"

	in := req.toInput("https://example.com/landing")

	if in.FirstName != "Dana" || in.LastName != "Reyes" {
		t.Fatalf("expected cleaned names, got %q %q", in.FirstName, in.LastName)
	}
	if in.Attribution["utm_source"] != "xgoogle" {
		t.Fatalf("expected tags stripped, got %q", in.Attribution["utm_source"])
	}
	if in.Attribution["referrer"] != "https://example.com/landing" {
		t.Fatalf("expected referrer fallback, got %q", in.Attribution["referrer"])
	}
	if len(in.Attribution["utm_campaign"]) > maxAttributionValue {
		t.Fatalf("expected value capped at %d bytes", maxAttributionValue)
	}
	if in.Attribution["utm_term"] != "windows" {
		t.Fatalf("expected tag-free key, got %v", in.Attribution)
	}
	if _, ok := in.Attribution[strings.Repeat("k", maxAttributionKey)]; !ok {
		t.Fatalf("expected key capped at %d bytes, got %v", maxAttributionKey, in.Attribution)
	}
	if len(in.Attribution) != 5 {
		t.Fatalf("expected empty keys dropped, got %d entries", len(in.Attribution))
	}
}
