package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"argus/pkg/accesslog"
	"argus/pkg/auth"
	"argus/pkg/classify"
	"argus/pkg/exposure"
	"argus/pkg/outlier"
	"argus/pkg/risk"
)

func newTestServer() *server {
	classifier := classify.NewClassifier()
	return &server{
		aggregator: risk.NewAggregator(risk.WithClassifier(classifier)),
		analyzer:   exposure.NewAnalyzer(),
		classifier: classifier,
		detector:   outlier.NewDetector(),
		logger:     accesslog.NewLoggerTo(serviceName, io.Discard),
	}
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler := newTestServer().routes()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRiskEndpoint(t *testing.T) {
	handler := newTestServer().routes()
	rec := postJSON(t, handler, "/v1/risk", `{
		"id": "e1", "type": "domain", "value": "example.com", "risk_score": 0.5,
		"metadata": {"breaches_found": 2}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var v risk.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.EntityID != "e1" {
		t.Errorf("entity id = %q", v.EntityID)
	}
	if v.RiskScore != 80 {
		t.Errorf("risk score = %v, want 80 (base 50 + breach 30)", v.RiskScore)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Errorf("missing correlation header")
	}
}

func TestRiskEndpointRejectsBadJSON(t *testing.T) {
	handler := newTestServer().routes()
	for _, path := range []string{"/v1/risk", "/v1/risk/batch", "/v1/exposure", "/v1/classify"} {
		rec := postJSON(t, handler, path, `{"truncated`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, rec.Code)
		}
	}
}

func TestRiskEndpointMethodNotAllowed(t *testing.T) {
	handler := newTestServer().routes()
	for _, path := range []string{"/v1/risk", "/v1/risk/batch", "/v1/exposure", "/v1/classify"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", path, rec.Code)
		}
	}
}

func TestRiskBatchToleratesNullEntities(t *testing.T) {
	handler := newTestServer().routes()
	rec := postJSON(t, handler, "/v1/risk/batch", `{"entities": [
		null,
		{"id": "e1", "type": "domain", "value": "example.com", "risk_score": 0.5}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Verdicts  []risk.Verdict `json:"verdicts"`
		Anomalies int            `json:"anomalies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Verdicts) != 2 {
		t.Fatalf("verdicts = %d, want 2", len(resp.Verdicts))
	}
	if resp.Verdicts[0].EntityID != "" {
		t.Errorf("null entry verdict id = %q, want empty", resp.Verdicts[0].EntityID)
	}
	if resp.Verdicts[1].EntityID != "e1" {
		t.Errorf("second verdict id = %q", resp.Verdicts[1].EntityID)
	}
}

func TestRiskEndpointMalformedMetadata(t *testing.T) {
	// Decodable but garbage-typed metadata must degrade, never 500.
	handler := newTestServer().routes()
	rec := postJSON(t, handler, "/v1/risk", `{
		"id": "e1", "type": "domain", "value": "example.com",
		"metadata": {"open_ports": "nonsense", "breaches_found": "many", "sources": 7}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
}

func TestExposureEndpoint(t *testing.T) {
	handler := newTestServer().routes()
	rec := postJSON(t, handler, "/v1/exposure", `{
		"id": "e1", "type": "email", "value": "a@example.com",
		"metadata": {"breach_found": true}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var v exposure.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Identity.ExposureScore != 40 {
		t.Errorf("identity score = %v, want 40", v.Identity.ExposureScore)
	}
}

func TestClassifyEndpoint(t *testing.T) {
	handler := newTestServer().routes()

	rec := postJSON(t, handler, "/v1/classify", `{
		"entity": {"id": "e1", "type": "domain", "risk_score": 0.9},
		"anomaly_score": 0.85
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("entity status = %d, want 200", rec.Code)
	}
	var v classify.Verdict
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.Severity != "critical" {
		t.Errorf("severity = %s, want critical", v.Severity)
	}

	rec = postJSON(t, handler, "/v1/classify", `{
		"relationship": {"source_id": "a", "target_id": "b", "type": "targets", "confidence": 0.9},
		"anomaly_score": 0.5
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("relationship status = %d, want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode verdict: %v", err)
	}
	if v.PrimaryType != classify.AnomalyInfrastructure {
		t.Errorf("primary = %s, want infrastructure", v.PrimaryType)
	}
}

func TestAuthEnforcement(t *testing.T) {
	secret := []byte("riskd-test-secret")
	verifier := auth.NewVerifier(secret, "")
	handler := auth.Middleware(verifier, "/healthz", "/metrics")(newTestServer().routes())

	// No token.
	rec := postJSON(t, handler, "/v1/risk", `{"id": "e1", "type": "domain"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	// Garbage token.
	req := httptest.NewRequest(http.MethodPost, "/v1/risk", bytes.NewBufferString(`{"id":"e1","type":"domain"}`))
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}

	// Health stays open.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}

	// Valid token passes through to the handler.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Subject: "scorer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/v1/risk", bytes.NewBufferString(`{"id":"e1","type":"domain"}`))
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
}
