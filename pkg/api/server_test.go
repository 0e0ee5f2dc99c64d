package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mirakessler/nudge/pkg"
	"github.com/mirakessler/nudge/pkg/feedback"
	"github.com/mirakessler/nudge/pkg/inference"
	"github.com/mirakessler/nudge/pkg/logx"
	"github.com/mirakessler/nudge/pkg/rules"
	"github.com/mirakessler/nudge/pkg/timing"
)

func testServer(t *testing.T) (*Server, *rules.Catalog) {
	t.Helper()
	logger := logx.NewLoggerWithWriter("error", "api-test", io.Discard)
	cat := rules.NewCatalog()
	opt := timing.New(nil)
	eng := inference.New(cat, opt, nil, nil, logger, 0)
	fb := feedback.New(cat, opt, nil, logger)
	s := New(cat, eng, fb, nil, nil, nil, nil, nil, DefaultConfig(), logger)
	return s, cat
}

func TestHandleInfer_ReturnsSuggestions(t *testing.T) {
	s, cat := testServer(t)
	cat.Create(pkg.Rule{
		Name:             "Gym bag reminder",
		TriggerCondition: map[string]any{"activity": "STATIONARY"},
		Weight:           0.9,
	})

	body, _ := json.Marshal(inferRequest{
		Context: pkg.Context{Timestamp: time.Now(), Activity: pkg.ActivityStill, SpeedKMH: 0},
	})
	req := httptest.NewRequest("POST", "/v1/infer", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp pkg.InferenceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.SuggestedTasks) != 1 {
		t.Fatalf("expected 1 suggested task, got %d", len(resp.SuggestedTasks))
	}
}

func TestHandleCreateRule_RejectsMissingTrigger(t *testing.T) {
	s, _ := testServer(t)
	body, _ := json.Marshal(createRuleRequest{Name: "no trigger"})
	req := httptest.NewRequest("POST", "/v1/rules", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleDeactivateRule_UnknownIDReturns404(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest("DELETE", "/v1/rules/999", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RejectsBadKey(t *testing.T) {
	s, _ := testServer(t)
	hash, err := HashAuthKey("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s.config.AuthKeyHash = hash

	req := httptest.NewRequest("GET", "/v1/rules", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != 401 {
		t.Fatalf("expected 401 without a key, got %d", rec.Code)
	}

	req2 := httptest.NewRequest("GET", "/v1/rules?auth=secret", nil)
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	if rec2.Code != 200 {
		t.Fatalf("expected 200 with the correct key, got %d", rec2.Code)
	}
}

func TestHandleHealthz_ReportsOK(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
