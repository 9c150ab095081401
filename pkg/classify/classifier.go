// Package classify assigns a rule-based anomaly category to entities and
// relationships, independent of the statistical outlier detector.
package classify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"argus/pkg/features"
	"argus/pkg/intel"
)

// AnomalyType categorizes why an entity or relationship looks unusual.
type AnomalyType string

const (
	AnomalyBehavioral     AnomalyType = "behavioral"
	AnomalyInfrastructure AnomalyType = "infrastructure"
	AnomalyDataQuality    AnomalyType = "data_quality"
	AnomalyTemporal       AnomalyType = "temporal"
	AnomalySemantic       AnomalyType = "semantic"
	AnomalyRelationship   AnomalyType = "relationship"
)

// Verdict is the classification result. Created on demand, never mutated.
type Verdict struct {
	ID            string        `json:"id"`
	PrimaryType   AnomalyType   `json:"primary_type"`
	Severity      intel.Level   `json:"severity"`
	Confidence    float64       `json:"confidence"`
	DetectedTypes []AnomalyType `json:"detected_types,omitempty"`
	Indicators    []string      `json:"indicators,omitempty"`
	Description   string        `json:"description"`
	AffectedIDs   []string      `json:"affected_ids,omitempty"`
	Recommended   []string      `json:"recommended_actions,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Classifier evaluates the fixed rule set. Stateless apart from its
// collaborators; rule tables never change at runtime, so one instance can be
// shared freely.
type Classifier struct {
	graph     features.GraphQuerier
	extractor *features.Extractor
	now       func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithGraph attaches a graph querier for endpoint and degree lookups. Without
// one the endpoint-dependent relationship rules stay silent.
func WithGraph(g features.GraphQuerier) Option {
	return func(c *Classifier) { c.graph = g }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// NewClassifier creates a classifier.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	exOpts := []features.Option{features.WithClock(func() time.Time { return c.now() })}
	if c.graph != nil {
		exOpts = append(exOpts, features.WithGraph(c.graph))
	}
	c.extractor = features.NewExtractor(exOpts...)
	return c
}

// ClassifyEntity runs every entity rule and selects the primary anomaly type.
// anomalyScore (0..1) comes from the caller, typically the outlier detector;
// severity is derived from it regardless of which rule fired. featureVec may
// be nil, in which case it is extracted here. Never fails on malformed input.
func (c *Classifier) ClassifyEntity(e *intel.Entity, anomalyScore float64, featureVec []float64) Verdict {
	v := Verdict{
		ID:        uuid.NewString(),
		Severity:  intel.LevelFromUnit(intel.Clamp01(anomalyScore)),
		Timestamp: c.now(),
	}
	if e == nil {
		v.PrimaryType = AnomalyBehavioral
		v.Confidence = 0.5
		v.Description = "no entity data available for classification"
		v.Recommended = recommendations(v.Severity, v.PrimaryType)
		return v
	}
	v.AffectedIDs = []string{e.ID}

	if len(featureVec) != features.EntityVectorSize {
		featureVec = c.extractor.EntityVector(e)
	}

	best := -1.0
	for _, rule := range entityRules {
		hit, indicators, desc := rule.detect(e, featureVec)
		if !hit {
			continue
		}
		v.DetectedTypes = append(v.DetectedTypes, rule.anomalyType)
		v.Indicators = append(v.Indicators, indicators...)
		// Strict greater keeps declaration order as the tie-break.
		if rule.confidence > best {
			best = rule.confidence
			v.PrimaryType = rule.anomalyType
			v.Confidence = rule.confidence
			v.Description = desc
		}
	}

	if best < 0 {
		v.PrimaryType = AnomalyBehavioral
		v.Confidence = 0.5
		v.Description = fmt.Sprintf("statistical deviation (anomaly score %.2f) with no matching rule", intel.Clamp01(anomalyScore))
	}

	v.Recommended = recommendations(v.Severity, v.PrimaryType)
	return v
}

// unusualRelations escalate a relationship verdict to infrastructure.
var unusualRelations = map[intel.RelationType]bool{
	intel.RelTargets:     true,
	intel.RelExploits:    true,
	intel.RelCompromises: true,
}

// ClassifyRelationship classifies an anomalous relationship. Starts from the
// relationship type and escalates to infrastructure when the edge connects
// entities of very different risk or uses an unusual relation type.
func (c *Classifier) ClassifyRelationship(r *intel.Relationship, anomalyScore float64) Verdict {
	v := Verdict{
		ID:          uuid.NewString(),
		PrimaryType: AnomalyRelationship,
		Confidence:  0.6,
		Severity:    intel.LevelFromUnit(intel.Clamp01(anomalyScore)),
		Timestamp:   c.now(),
	}
	if r == nil {
		v.Confidence = 0.5
		v.Description = "no relationship data available for classification"
		v.Recommended = recommendations(v.Severity, v.PrimaryType)
		return v
	}
	v.AffectedIDs = []string{r.SourceID, r.TargetID}
	v.Description = fmt.Sprintf("unusual %s relationship", r.Type)

	if unusualRelations[r.Type] {
		v.PrimaryType = AnomalyInfrastructure
		v.Confidence = 0.8
		v.Indicators = append(v.Indicators, fmt.Sprintf("unusual_relationship_type:%s", r.Type))
		v.Description = fmt.Sprintf("%s relationship indicates hostile infrastructure activity", r.Type)
	}

	if c.graph != nil {
		if src, ok := c.graph.EntityByID(r.SourceID); ok {
			if dst, ok := c.graph.EntityByID(r.TargetID); ok {
				diff := intel.Clamp01(src.RiskScore) - intel.Clamp01(dst.RiskScore)
				if diff < 0 {
					diff = -diff
				}
				if diff > 0.6 {
					v.PrimaryType = AnomalyInfrastructure
					if v.Confidence < 0.8 {
						v.Confidence = 0.8
					}
					v.Indicators = append(v.Indicators, fmt.Sprintf("risk_score_divergence:%.2f", diff))
					v.Description = "relationship bridges entities with divergent risk profiles"
				}
			}
		}
		// Bridging is reported as an indicator only; it does not change the
		// primary type.
		if c.isBridging(r) {
			v.Indicators = append(v.Indicators, "bridging_node")
		}
	}

	v.DetectedTypes = append(v.DetectedTypes, v.PrimaryType)
	v.Recommended = recommendations(v.Severity, v.PrimaryType)
	return v
}

// isBridging reports whether the edge connects a hub (degree>30) to a
// near-isolated node (degree<5) in either direction.
func (c *Classifier) isBridging(r *intel.Relationship) bool {
	srcDeg := c.graph.DegreeOf(r.SourceID)
	dstDeg := c.graph.DegreeOf(r.TargetID)
	return (srcDeg > 30 && dstDeg < 5) || (dstDeg > 30 && srcDeg < 5)
}
