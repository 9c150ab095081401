package outlier

import (
	"encoding/json"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"argus/pkg/exposure"
	"argus/pkg/intel"
)

// MinBatchSize is the smallest population the detector will fit on. Smaller
// batches are passed through unannotated rather than rejected.
const MinBatchSize = 10

// DefaultSeed fixes the forest's randomness so repeated runs over the same
// batch agree.
const DefaultSeed = 42

var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "argus", Subsystem: "outlier", Name: "batches_total", Help: "Outlier detection batches by outcome."},
		[]string{"outcome"},
	)
	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "argus", Subsystem: "outlier", Name: "anomalies_total", Help: "Entities flagged as population outliers."},
	)
)

func init() {
	_ = prometheus.Register(batchesTotal)
	_ = prometheus.Register(anomaliesTotal)
}

// Result annotates one entity with its population-relative outlier signal.
type Result struct {
	Entity       *intel.Entity `json:"entity"`
	AnomalyScore float64       `json:"anomaly_score"`
	IsAnomaly    bool          `json:"is_anomaly"`
	Scored       bool          `json:"scored"`
}

// Detector fits an isolation forest over each batch and scores every member.
// Fit-then-score is not safe to interleave: serialize DetectBatch calls on a
// shared instance or give each batch its own Detector.
type Detector struct {
	numTrees   int
	sampleSize int
	seed       int64
}

// NewDetector creates a batch outlier detector with the default ensemble
// configuration and fixed seed.
func NewDetector() *Detector {
	return &Detector{numTrees: 100, sampleSize: 256, seed: DefaultSeed}
}

// NewDetectorWithSeed creates a detector with a caller-chosen seed.
func NewDetectorWithSeed(seed int64) *Detector {
	return &Detector{numTrees: 100, sampleSize: 256, seed: seed}
}

// DetectBatch scores a batch of entities against its own population.
// Batches below MinBatchSize come back unscored (Scored=false, no anomaly
// annotation). That is an explicit degraded mode, not an error.
func (d *Detector) DetectBatch(entities []*intel.Entity) ([]Result, error) {
	results := make([]Result, len(entities))
	for i, e := range entities {
		results[i] = Result{Entity: e}
	}
	if len(entities) < MinBatchSize {
		log.Printf("[outlier] batch of %d below minimum %d; skipping detection", len(entities), MinBatchSize)
		batchesTotal.WithLabelValues("skipped").Inc()
		return results, nil
	}

	rows := make([][]float64, len(entities))
	for i, e := range entities {
		rows[i] = reducedVector(e)
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(rows); err != nil {
		batchesTotal.WithLabelValues("error").Inc()
		return results, err
	}
	scaled, err := scaler.Transform(rows)
	if err != nil {
		batchesTotal.WithLabelValues("error").Inc()
		return results, err
	}

	forest := NewIsolationForest(d.numTrees, d.sampleSize, d.seed)
	if err := forest.Fit(scaled); err != nil {
		batchesTotal.WithLabelValues("error").Inc()
		return results, err
	}

	for i, row := range scaled {
		decision := forest.DecisionFunction(row)
		results[i].AnomalyScore = decision
		results[i].IsAnomaly = decision < 0
		results[i].Scored = true
		if results[i].IsAnomaly {
			anomaliesTotal.Inc()
		}
	}
	batchesTotal.WithLabelValues("scored").Inc()
	return results, nil
}

// reducedVector projects an entity onto the compact profile the detector
// standardizes: risk ordinal, breach and port exposure, record size and
// presence flags.
func reducedVector(e *intel.Entity) []float64 {
	if e == nil {
		return make([]float64, 8)
	}
	meta := e.Meta()

	v := make([]float64, 8)
	v[0] = intel.LevelOrdinal(intel.LevelFromUnit(intel.Clamp01(e.RiskScore)))
	v[1] = intel.MetaNumber(meta, "breaches_found", 0)
	v[2] = float64(len(exposure.OpenPorts(meta)))
	v[3] = float64(len(e.Value))
	v[4] = float64(metaSize(meta))
	if intel.MetaString(meta, "location") != "" || e.Type == intel.TypeLocation {
		v[5] = 1
	}
	if _, ok := meta["latitude"]; ok {
		if _, ok := meta["longitude"]; ok {
			v[6] = 1
		}
	}
	if intel.MetaString(meta, "organization") != "" {
		v[7] = 1
	}
	return v
}

func metaSize(meta map[string]any) int {
	if len(meta) == 0 {
		return 0
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return 0
	}
	return len(b)
}
