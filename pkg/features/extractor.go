// Package features converts entities and relationships into the fixed-length
// numeric vectors consumed by the outlier detector and the classifier.
package features

import (
	"math"
	"time"

	"argus/pkg/intel"
)

// EntityVectorSize is the length of an entity feature vector.
const EntityVectorSize = 18

// RelationshipVectorSize is the length of a relationship feature vector.
const RelationshipVectorSize = 12

// Entity feature vector positions. Consumers index vectors positionally, so
// this order is frozen.
const (
	FeatDegreeCentrality = iota
	FeatBetweenness
	FeatCloseness
	FeatEigenvector
	FeatClustering
	FeatSourceCount
	FeatUpdateFrequency
	FeatConfidence
	FeatRiskScore
	FeatFirstSeenAgeDays
	FeatLastUpdatedAgeDays
	FeatUpdateFrequencyStd
	FeatRelationshipCount
	FeatEntityTypeEncoded
	FeatIsVerified
	FeatMetadataRichness
	FeatTagCount
	FeatTemporalActivity
)

// Relationship feature vector positions.
const (
	RelFeatConfidence = iota
	RelFeatConfidenceVariance
	RelFeatSourceDiversity
	RelFeatTemporalClustering
	RelFeatStrength
	RelFeatBidirectional
	RelFeatTypeEncoded
	RelFeatAgeDays
	RelFeatUpdateFrequency
	RelFeatDegreeProduct
	RelFeatRiskScoreDiff
	RelFeatConfidenceAgreement
)

// GraphQuerier resolves relationship endpoints, degrees and reverse edges
// from data the caller has already materialized. Implementations must not
// block on network or disk.
type GraphQuerier interface {
	EntityByID(id string) (*intel.Entity, bool)
	DegreeOf(id string) int
	FindReverse(sourceID, targetID string) bool
}

// HistoryProvider supplies time-series statistics once historical observation
// data exists. DefaultHistory stands in until then.
type HistoryProvider interface {
	UpdateFrequencyStd(entityID string) float64
	ConfidenceVariance(sourceID, targetID string) float64
	TemporalClustering(sourceID, targetID string) float64
}

// DefaultHistory returns the fixed placeholder constants used before any
// historical data is collected.
type DefaultHistory struct{}

func (DefaultHistory) UpdateFrequencyStd(string) float64         { return 0.1 }
func (DefaultHistory) ConfidenceVariance(string, string) float64 { return 0.1 }
func (DefaultHistory) TemporalClustering(string, string) float64 { return 0.5 }

// Extractor computes feature vectors. Stateless apart from its collaborators;
// safe for concurrent use.
type Extractor struct {
	graph   GraphQuerier
	history HistoryProvider
	now     func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithGraph attaches a graph querier for degree, endpoint and reverse-edge
// features. Without one those features are zero.
func WithGraph(g GraphQuerier) Option {
	return func(ex *Extractor) { ex.graph = g }
}

// WithHistory replaces the placeholder history provider.
func WithHistory(h HistoryProvider) Option {
	return func(ex *Extractor) { ex.history = h }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(ex *Extractor) { ex.now = now }
}

// NewExtractor creates a feature extractor.
func NewExtractor(opts ...Option) *Extractor {
	ex := &Extractor{
		history: DefaultHistory{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// EntityVector extracts the 18-element entity feature vector. Missing
// timestamps and malformed metadata degrade to zero-valued features; this
// function does not fail.
func (ex *Extractor) EntityVector(e *intel.Entity) []float64 {
	v := make([]float64, EntityVectorSize)
	if e == nil {
		v[FeatEntityTypeEncoded] = -1
		return v
	}

	meta := e.Meta()
	now := ex.now()

	// Centrality approximations are monotonic functions of relationship
	// count, not graph traversals; true centrality lives in the graph store.
	degree := float64(ex.degreeOf(e)) / 100.0
	v[FeatDegreeCentrality] = degree
	v[FeatBetweenness] = math.Min(1.0, degree*0.5)
	v[FeatCloseness] = math.Min(1.0, degree*0.3)
	v[FeatEigenvector] = math.Min(1.0, degree*0.4)
	v[FeatClustering] = math.Max(0.0, 1.0-degree*0.5)

	sources := intel.MetaLen(meta, "sources")
	if sources == 0 {
		sources = 1
	}
	v[FeatSourceCount] = float64(sources)

	firstSeenAge := ageDays(e.FirstSeen, now)
	lastSeenAge := ageDays(e.LastSeen, now)
	// Exactly one observed update is assumed; real update counts arrive with
	// the history provider.
	v[FeatUpdateFrequency] = 1.0 / math.Max(1.0, firstSeenAge)
	v[FeatConfidence] = intel.Clamp01(e.Confidence)
	v[FeatRiskScore] = intel.Clamp01(e.RiskScore)
	v[FeatFirstSeenAgeDays] = firstSeenAge
	v[FeatLastUpdatedAgeDays] = lastSeenAge
	v[FeatUpdateFrequencyStd] = ex.history.UpdateFrequencyStd(e.ID)
	v[FeatRelationshipCount] = float64(ex.degreeOf(e))
	v[FeatEntityTypeEncoded] = float64(intel.EncodeEntityType(e.Type))
	if e.Verified {
		v[FeatIsVerified] = 1
	}
	v[FeatMetadataRichness] = metadataRichness(e, meta)
	v[FeatTagCount] = float64(len(e.Tags))
	if !e.LastSeen.IsZero() {
		// 30-day decay: an entity seen today scores ~1, a month ago ~0.37.
		v[FeatTemporalActivity] = math.Exp(-lastSeenAge / 30.0)
	}

	return v
}

// RelationshipVector extracts the 12-element relationship feature vector.
// Endpoint lookups that fail leave the dependent features at zero.
func (ex *Extractor) RelationshipVector(r *intel.Relationship) []float64 {
	v := make([]float64, RelationshipVectorSize)
	if r == nil {
		v[RelFeatTypeEncoded] = -1
		return v
	}

	meta := r.Meta()
	now := ex.now()

	v[RelFeatConfidence] = intel.Clamp01(r.Confidence)
	v[RelFeatConfidenceVariance] = ex.history.ConfidenceVariance(r.SourceID, r.TargetID)

	if n := intel.MetaLen(meta, "sources"); n > 0 {
		v[RelFeatSourceDiversity] = math.Min(float64(n)/5.0, 1.0)
	} else {
		v[RelFeatSourceDiversity] = 0.2
	}

	v[RelFeatTemporalClustering] = ex.history.TemporalClustering(r.SourceID, r.TargetID)

	evidence := intel.MetaNumber(meta, "evidence_count", 0)
	bonus := math.Min(evidence*0.1, 0.5)
	v[RelFeatStrength] = math.Min(intel.Clamp01(r.Confidence)+bonus, 1.0)

	if ex.graph != nil && ex.graph.FindReverse(r.SourceID, r.TargetID) {
		v[RelFeatBidirectional] = 1
	}
	v[RelFeatTypeEncoded] = float64(intel.EncodeRelationType(r.Type))

	age := ageDays(r.CreatedAt, now)
	v[RelFeatAgeDays] = age
	v[RelFeatUpdateFrequency] = 1.0 / math.Max(1.0, age)

	if ex.graph != nil {
		srcDeg := float64(ex.graph.DegreeOf(r.SourceID))
		dstDeg := float64(ex.graph.DegreeOf(r.TargetID))
		// Normalized assuming max degree 100 per endpoint.
		v[RelFeatDegreeProduct] = math.Min(srcDeg*dstDeg/10000.0, 1.0)

		src, srcOK := ex.graph.EntityByID(r.SourceID)
		dst, dstOK := ex.graph.EntityByID(r.TargetID)
		if srcOK && dstOK {
			v[RelFeatRiskScoreDiff] = math.Abs(intel.Clamp01(src.RiskScore) - intel.Clamp01(dst.RiskScore))
			avgConf := (intel.Clamp01(src.Confidence) + intel.Clamp01(dst.Confidence)) / 2.0
			v[RelFeatConfidenceAgreement] = 1.0 - math.Abs(intel.Clamp01(r.Confidence)-avgConf)
		}
	}

	return v
}

// EntityBatch applies EntityVector row-wise.
func (ex *Extractor) EntityBatch(entities []*intel.Entity) [][]float64 {
	out := make([][]float64, len(entities))
	for i, e := range entities {
		out[i] = ex.EntityVector(e)
	}
	return out
}

// RelationshipBatch applies RelationshipVector row-wise.
func (ex *Extractor) RelationshipBatch(rels []*intel.Relationship) [][]float64 {
	out := make([][]float64, len(rels))
	for i, r := range rels {
		out[i] = ex.RelationshipVector(r)
	}
	return out
}

// degreeOf prefers the graph store's count over the denormalized field.
func (ex *Extractor) degreeOf(e *intel.Entity) int {
	if ex.graph != nil {
		if d := ex.graph.DegreeOf(e.ID); d > 0 {
			return d
		}
	}
	return e.RelationshipCount
}

// metadataRichness scores how much descriptive context an entity carries:
// 0.2 each for name, description and tags, plus 0.1 per metadata key up to 0.4.
func metadataRichness(e *intel.Entity, meta map[string]any) float64 {
	score := 0.0
	if intel.MetaString(meta, "name") != "" {
		score += 0.2
	}
	if intel.MetaString(meta, "description") != "" {
		score += 0.2
	}
	if len(e.Tags) > 0 {
		score += 0.2
	}
	score += math.Min(float64(len(meta))*0.1, 0.4)
	return intel.Clamp01(score)
}

func ageDays(t time.Time, now time.Time) float64 {
	if t.IsZero() || t.After(now) {
		return 0
	}
	return now.Sub(t).Hours() / 24.0
}
