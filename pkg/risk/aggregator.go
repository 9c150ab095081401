// Package risk combines exposure, rule-based classification and the
// statistical outlier signal into the final entity risk verdict.
package risk

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"argus/pkg/classify"
	"argus/pkg/exposure"
	"argus/pkg/intel"
	"argus/pkg/outlier"
)

var (
	assessmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "argus", Subsystem: "risk", Name: "assessments_total", Help: "Entity risk assessments by resulting level."},
		[]string{"level"},
	)
	riskScoreHist = prometheus.NewHistogram(
		prometheus.HistogramOpts{Namespace: "argus", Subsystem: "risk", Name: "score", Help: "Distribution of aggregate risk scores.", Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}},
	)
)

func init() {
	_ = prometheus.Register(assessmentsTotal)
	_ = prometheus.Register(riskScoreHist)
}

// baseScores maps the entity's own 0-1-scale risk level to the aggregate
// starting score.
var baseScores = map[intel.Level]float64{
	intel.LevelCritical: 90,
	intel.LevelHigh:     70,
	intel.LevelMedium:   50,
	intel.LevelLow:      20,
	intel.LevelInfo:     10,
}

// suspiciousTLDs are free or abuse-heavy registries.
var suspiciousTLDs = map[string]bool{
	"tk": true, "ml": true, "ga": true, "cf": true, "gq": true,
	"xyz": true, "top": true, "pw": true,
}

// Factor is one contribution to the aggregate score.
type Factor struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// MLPrediction carries the advisory outlier-detector signal. It never
// overrides the rule-based score.
type MLPrediction struct {
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
}

// Verdict is the terminal risk assessment returned to callers.
type Verdict struct {
	ID             string             `json:"id"`
	EntityID       string             `json:"entity_id"`
	RiskScore      float64            `json:"risk_score"` // 0..100
	RiskLevel      intel.Level        `json:"risk_level"`
	Confidence     float64            `json:"confidence"` // 0..1
	Components     map[string]float64 `json:"components"`
	Factors        []Factor           `json:"factors,omitempty"`
	MLPrediction   *MLPrediction      `json:"ml_prediction,omitempty"`
	Classification *classify.Verdict  `json:"classification,omitempty"`
	AssessedAt     time.Time          `json:"assessed_at"`
}

// Aggregator owns the sub-assessors. Stateless; safe for concurrent use.
type Aggregator struct {
	exposure   *exposure.Analyzer
	classifier *classify.Classifier
	now        func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClassifier substitutes a classifier wired to a graph querier.
func WithClassifier(c *classify.Classifier) Option {
	return func(a *Aggregator) { a.classifier = c }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a risk aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		exposure: exposure.NewAnalyzer(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.classifier == nil {
		a.classifier = classify.NewClassifier()
	}
	return a
}

// AssessEntity produces the rule-based risk verdict for a single entity.
func (a *Aggregator) AssessEntity(e *intel.Entity) Verdict {
	return a.AssessEntityWithSignal(e, nil)
}

// AssessEntityWithSignal additionally attaches an outlier-detector result as
// the advisory ml_prediction field. The rule-based score stays authoritative.
func (a *Aggregator) AssessEntityWithSignal(e *intel.Entity, signal *outlier.Result) Verdict {
	v := Verdict{
		ID:         uuid.NewString(),
		Components: map[string]float64{},
		AssessedAt: a.now(),
	}
	if e == nil {
		v.RiskLevel = intel.LevelFromRisk(0)
		v.Confidence = 0.5
		return v
	}
	v.EntityID = e.ID

	base := baseScores[intel.LevelFromUnit(intel.Clamp01(e.RiskScore))]
	factors := collectFactors(e)

	score := base
	factorTotal := 0.0
	for _, f := range factors {
		score += f.Score
		factorTotal += f.Score
	}
	score = intel.Clamp100(score)

	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Score > factors[j].Score })

	v.RiskScore = score
	v.RiskLevel = intel.LevelFromRisk(score)
	v.Confidence = verdictConfidence(e)
	v.Factors = factors
	v.Components["base_risk"] = base
	v.Components["risk_factors"] = factorTotal
	v.Components["total_exposure"] = a.exposure.TotalExposure(e)

	anomalyScore := score / 100.0
	if signal != nil && signal.Scored {
		v.MLPrediction = &MLPrediction{AnomalyScore: signal.AnomalyScore, IsAnomaly: signal.IsAnomaly}
		// decision = 0.5 - isolation score, so invert to get 0..1 severity
		anomalyScore = intel.Clamp01(0.5 - signal.AnomalyScore)
	}
	cls := a.classifier.ClassifyEntity(e, anomalyScore, nil)
	v.Classification = &cls

	assessmentsTotal.WithLabelValues(string(v.RiskLevel)).Inc()
	riskScoreHist.Observe(v.RiskScore)
	return v
}

// collectFactors evaluates the fixed additive factor table.
func collectFactors(e *intel.Entity) []Factor {
	meta := e.Meta()
	var factors []Factor
	add := func(name string, score float64, desc string) {
		factors = append(factors, Factor{Name: name, Score: score, Description: desc})
	}

	if intel.MetaNumber(meta, "breaches_found", 0) > 0 {
		add("breach_history", 30, "entity appears in known data breaches")
	}
	if intel.MetaBool(meta, "dark_web_mentions") {
		add("dark_web_presence", 25, "entity is referenced on dark-web sources")
	}
	if e.Type == intel.TypeIPAddress && (intel.MetaBool(meta, "vpn_detected") || intel.MetaBool(meta, "proxy_detected")) {
		add("anonymization_infrastructure", 15, "address belongs to VPN or proxy infrastructure")
	}
	if e.Type == intel.TypeDomain {
		if expiry := intel.MetaNumber(meta, "ssl_expiry_days", -1); expiry >= 0 {
			if expiry < 7 {
				add("ssl_expiry_imminent", 20, "TLS certificate expires within 7 days")
			} else if expiry < 30 {
				add("ssl_expiry_approaching", 10, "TLS certificate expires within 30 days")
			}
		}
		if tld := domainTLD(e.Value); suspiciousTLDs[tld] {
			add("suspicious_tld", 15, "domain uses an abuse-prone top-level domain")
		}
	}
	riskyPorts := 0
	for _, p := range exposure.OpenPorts(meta) {
		if exposure.HighRiskPorts[p] {
			riskyPorts++
		}
	}
	if riskyPorts > 0 {
		add("high_risk_ports", float64(riskyPorts)*10.0, "high-risk service ports are reachable")
	}
	if e.Type == intel.TypeMalware || intel.MetaBool(meta, "malware_detected") {
		add("malware_association", 40, "entity is associated with malware activity")
	}
	if intel.MetaBool(meta, "phishing_detected") {
		add("phishing_association", 35, "entity is associated with phishing activity")
	}
	if intel.MetaBool(meta, "no_https") {
		add("missing_https", 10, "entity serves traffic without HTTPS")
	}
	if sources := intel.MetaLen(meta, "sources"); sources >= 2 {
		add("source_correlation", math.Min(float64(sources)*5.0, 20.0), "risk corroborated across independent sources")
	}

	return factors
}

// verdictConfidence derives how much to trust the verdict from verification
// status and source corroboration.
func verdictConfidence(e *intel.Entity) float64 {
	conf := 0.5
	if e.Verified {
		conf += 0.2
	}
	conf += math.Min(float64(intel.MetaLen(e.Meta(), "sources"))*0.05, 0.3)
	return intel.Clamp01(conf)
}

func domainTLD(value string) string {
	idx := strings.LastIndex(value, ".")
	if idx < 0 || idx == len(value)-1 {
		return ""
	}
	return strings.ToLower(value[idx+1:])
}
