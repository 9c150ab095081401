package exposure

import (
	"argus/pkg/intel"
)

// Weights assigns the four model contributions for one entity-type group.
type Weights struct {
	Data           float64
	Network        float64
	Identity       float64
	Infrastructure float64
}

// Per-group weight tables. The groupings and exact weights are part of the
// scoring contract; changing them breaks comparability with historical scores.
var (
	identityWeights = Weights{Data: 0.30, Network: 0.15, Identity: 0.40, Infrastructure: 0.15}
	infraWeights    = Weights{Data: 0.20, Network: 0.35, Identity: 0.10, Infrastructure: 0.35}
	threatWeights   = Weights{Data: 0.15, Network: 0.25, Identity: 0.10, Infrastructure: 0.50}
	defaultWeights  = Weights{Data: 0.25, Network: 0.25, Identity: 0.25, Infrastructure: 0.25}
)

// WeightsFor returns the model weight table for an entity type.
func WeightsFor(t intel.EntityType) Weights {
	switch t {
	case intel.TypeEmail, intel.TypePhone, intel.TypePerson:
		return identityWeights
	case intel.TypeDomain, intel.TypeIPAddress, intel.TypeWebsite:
		return infraWeights
	case intel.TypeVulnerability, intel.TypeMalware:
		return threatWeights
	default:
		return defaultWeights
	}
}

// Verdict is the comprehensive exposure breakdown returned to callers.
type Verdict struct {
	TotalExposure  float64              `json:"total_exposure"`
	ExposureLevel  intel.Level          `json:"exposure_level"`
	Data           DataDetail           `json:"data_exposure"`
	Network        NetworkDetail        `json:"network_exposure"`
	Identity       IdentityDetail       `json:"identity_exposure"`
	Infrastructure InfrastructureDetail `json:"infrastructure_exposure"`
}

// Analyzer combines the four exposure models. Stateless; safe for concurrent use.
type Analyzer struct {
	data    DataModel
	network NetworkModel
	ident   IdentityModel
	infra   InfrastructureModel
}

// NewAnalyzer creates an exposure analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// TotalExposure returns the weighted 0-100 exposure total for an entity.
func (a *Analyzer) TotalExposure(e *intel.Entity) float64 {
	if e == nil {
		return 0
	}
	w := WeightsFor(e.Type)
	total := a.data.Score(e)*w.Data +
		a.network.Score(e)*w.Network +
		a.ident.Score(e)*w.Identity +
		a.infra.Score(e)*w.Infrastructure
	return intel.Clamp100(total)
}

// Comprehensive returns the total plus all four model breakdowns.
func (a *Analyzer) Comprehensive(e *intel.Entity) Verdict {
	v := Verdict{
		Data:           a.data.Details(e),
		Network:        a.network.Details(e),
		Identity:       a.ident.Details(e),
		Infrastructure: a.infra.Details(e),
	}
	v.TotalExposure = a.TotalExposure(e)
	v.ExposureLevel = intel.LevelFromExposure(v.TotalExposure)
	return v
}
