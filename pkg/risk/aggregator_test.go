package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/pkg/intel"
	"argus/pkg/outlier"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func factorByName(v Verdict, name string) (Factor, bool) {
	for _, f := range v.Factors {
		if f.Name == name {
			return f, true
		}
	}
	return Factor{}, false
}

func TestAssessEntityBaseScore(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com", RiskScore: 0.5}

	v := a.AssessEntity(e)
	require.Equal(t, "e1", v.EntityID)
	assert.Equal(t, 50.0, v.RiskScore)
	assert.Equal(t, intel.LevelMedium, v.RiskLevel)
	assert.Equal(t, 50.0, v.Components["base_risk"])
	assert.Equal(t, 0.0, v.Components["risk_factors"])
	assert.Equal(t, testNow, v.AssessedAt)
	assert.NotEmpty(t, v.ID)
	require.NotNil(t, v.Classification)
	assert.Nil(t, v.MLPrediction)
}

func TestAssessEntityFactors(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{
		ID: "e1", Type: intel.TypeDomain, Value: "login.example.tk", RiskScore: 0.1,
		Metadata: map[string]any{
			"breaches_found":    2.0,
			"dark_web_mentions": true,
			"phishing_detected": true,
			"no_https":          true,
		},
	}
	v := a.AssessEntity(e)

	// base 10 + breach 30 + dark web 25 + phishing 35 + https 10 + tld 15.
	assert.Equal(t, 100.0, v.RiskScore)
	assert.Equal(t, intel.LevelCritical, v.RiskLevel)
	assert.Equal(t, 10.0, v.Components["base_risk"])
	assert.Equal(t, 115.0, v.Components["risk_factors"])

	for _, name := range []string{"breach_history", "dark_web_presence", "phishing_association", "missing_https", "suspicious_tld"} {
		_, ok := factorByName(v, name)
		assert.True(t, ok, "missing factor %s", name)
	}
	// Factors come back sorted by contribution, largest first.
	for i := 1; i < len(v.Factors); i++ {
		assert.GreaterOrEqual(t, v.Factors[i-1].Score, v.Factors[i].Score)
	}
}

func TestAssessEntitySSLExpiryExclusive(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))

	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com",
		Metadata: map[string]any{"ssl_expiry_days": 5.0}}
	v := a.AssessEntity(e)
	imminent, ok := factorByName(v, "ssl_expiry_imminent")
	require.True(t, ok)
	assert.Equal(t, 20.0, imminent.Score)
	_, ok = factorByName(v, "ssl_expiry_approaching")
	assert.False(t, ok, "thresholds are exclusive in the aggregate factor table")

	e.Metadata["ssl_expiry_days"] = 20.0
	v = a.AssessEntity(e)
	approaching, ok := factorByName(v, "ssl_expiry_approaching")
	require.True(t, ok)
	assert.Equal(t, 10.0, approaching.Score)
}

func TestAssessEntitySSLFactorIsDomainOnly(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{ID: "e1", Type: intel.TypeIPAddress, Value: "203.0.113.7",
		Metadata: map[string]any{"ssl_expiry_days": 5.0}}
	v := a.AssessEntity(e)
	_, ok := factorByName(v, "ssl_expiry_imminent")
	assert.False(t, ok)
}

func TestAssessEntitySourceCorrelation(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))

	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com",
		Metadata: map[string]any{"sources": []any{"shodan"}}}
	v := a.AssessEntity(e)
	_, ok := factorByName(v, "source_correlation")
	assert.False(t, ok, "a single source is no corroboration")

	e.Metadata["sources"] = []any{"shodan", "censys", "whois"}
	v = a.AssessEntity(e)
	corr, ok := factorByName(v, "source_correlation")
	require.True(t, ok)
	assert.Equal(t, 15.0, corr.Score)

	// The correlation bonus caps at 20.
	e.Metadata["sources"] = []any{"a", "b", "c", "d", "e", "f"}
	v = a.AssessEntity(e)
	corr, _ = factorByName(v, "source_correlation")
	assert.Equal(t, 20.0, corr.Score)
}

func TestAssessEntityHighRiskPorts(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{ID: "e1", Type: intel.TypeIPAddress, Value: "203.0.113.7",
		Metadata: map[string]any{"open_ports": []any{22.0, 3389.0, 8080.0}}}
	v := a.AssessEntity(e)
	ports, ok := factorByName(v, "high_risk_ports")
	require.True(t, ok)
	assert.Equal(t, 20.0, ports.Score)
}

func TestVerdictConfidence(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))

	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com"}
	assert.Equal(t, 0.5, a.AssessEntity(e).Confidence)

	e.Verified = true
	assert.Equal(t, 0.7, a.AssessEntity(e).Confidence)

	e.Metadata = map[string]any{"sources": []any{"a", "b", "c"}}
	assert.InDelta(t, 0.85, a.AssessEntity(e).Confidence, 1e-9)

	// Source bonus caps at 0.3; total stays within [0,1].
	e.Metadata["sources"] = []any{"a", "b", "c", "d", "e", "f", "g", "h"}
	assert.InDelta(t, 1.0, a.AssessEntity(e).Confidence, 1e-9)
}

func TestAssessEntityWithSignalIsAdvisory(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com", RiskScore: 0.5}

	plain := a.AssessEntity(e)
	signal := &outlier.Result{Entity: e, AnomalyScore: -0.2, IsAnomaly: true, Scored: true}
	flagged := a.AssessEntityWithSignal(e, signal)

	// The outlier signal is attached but never moves the rule-based score.
	assert.Equal(t, plain.RiskScore, flagged.RiskScore)
	assert.Equal(t, plain.RiskLevel, flagged.RiskLevel)
	require.NotNil(t, flagged.MLPrediction)
	assert.True(t, flagged.MLPrediction.IsAnomaly)
	assert.Equal(t, -0.2, flagged.MLPrediction.AnomalyScore)

	// Classification severity follows the inverted decision value (0.5 - -0.2).
	require.NotNil(t, flagged.Classification)
	assert.Equal(t, intel.LevelHigh, flagged.Classification.Severity)
}

func TestAssessEntityUnscoredSignalIgnored(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{ID: "e1", Type: intel.TypeDomain, Value: "example.com"}
	v := a.AssessEntityWithSignal(e, &outlier.Result{Entity: e, Scored: false})
	assert.Nil(t, v.MLPrediction)
}

func TestAssessEntityNil(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	v := a.AssessEntity(nil)
	assert.Equal(t, 0.0, v.RiskScore)
	assert.Equal(t, intel.LevelInfo, v.RiskLevel)
	assert.Equal(t, 0.5, v.Confidence)
	assert.Empty(t, v.EntityID)
}

func TestAssessEntityScoreClamped(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock))
	e := &intel.Entity{
		ID: "e1", Type: intel.TypeMalware, Value: "evil", RiskScore: 0.95,
		Metadata: map[string]any{
			"breaches_found":    9.0,
			"dark_web_mentions": true,
			"phishing_detected": true,
		},
	}
	v := a.AssessEntity(e)
	assert.Equal(t, 100.0, v.RiskScore)
	_, ok := factorByName(v, "malware_association")
	assert.True(t, ok)
}

func TestDomainTLD(t *testing.T) {
	assert.Equal(t, "tk", domainTLD("phish.example.TK"))
	assert.Equal(t, "com", domainTLD("example.com"))
	assert.Equal(t, "", domainTLD("localhost"))
	assert.Equal(t, "", domainTLD("trailing."))
}
