package exposure

import (
	"math"

	"argus/pkg/intel"
)

// InfrastructureModel scores exposure through TLS posture, CVEs and
// configuration hygiene.
type InfrastructureModel struct{}

// InfrastructureDetail is the per-call breakdown of an infrastructure
// exposure score.
type InfrastructureDetail struct {
	ExposureScore      float64     `json:"exposure_score"`
	ExposureLevel      intel.Level `json:"exposure_level"`
	SSLExpiryDays      int         `json:"ssl_expiry_days"`
	NoSSL              bool        `json:"no_ssl"`
	SSLVulnerable      bool        `json:"ssl_vulnerable"`
	CVECount           int         `json:"cve_count"`
	CriticalCVECount   int         `json:"critical_cve_count"`
	OutdatedSoftware   bool        `json:"outdated_software"`
	Misconfigured      bool        `json:"misconfigured"`
	Unpatched          bool        `json:"unpatched"`
	WeakAuth           bool        `json:"weak_auth"`
	DefaultCredentials bool        `json:"default_credentials"`
}

// Score returns the 0-100 infrastructure exposure score.
func (InfrastructureModel) Score(e *intel.Entity) float64 {
	return infrastructureDetail(e).ExposureScore
}

// Details returns the score with its contributing signals.
func (InfrastructureModel) Details(e *intel.Entity) InfrastructureDetail {
	return infrastructureDetail(e)
}

func infrastructureDetail(e *intel.Entity) InfrastructureDetail {
	var d InfrastructureDetail
	d.SSLExpiryDays = -1
	if e == nil {
		d.ExposureLevel = intel.LevelFromExposure(0)
		return d
	}
	meta := e.Meta()

	score := 0.0

	// Both expiry thresholds fire independently: a cert expiring in 5 days
	// accrues the <30 and the <7 contribution. Layered urgency, not a bug.
	expiry := intel.MetaNumber(meta, "ssl_expiry_days", -1)
	if expiry >= 0 {
		d.SSLExpiryDays = int(expiry)
		if expiry < 30 {
			score += 20
		}
		if expiry < 7 {
			score += 35
		}
	}
	d.NoSSL = intel.MetaBool(meta, "no_ssl")
	if d.NoSSL {
		score += 25
	}
	d.SSLVulnerable = intel.MetaBool(meta, "ssl_vulnerable")
	if d.SSLVulnerable {
		score += 30
	}

	d.CVECount = intel.MetaLen(meta, "cves")
	if d.CVECount == 0 {
		d.CVECount = int(intel.MetaNumber(meta, "cve_count", 0))
	}
	score += math.Min(float64(d.CVECount)*10.0, 40.0)
	d.CriticalCVECount = int(intel.MetaNumber(meta, "critical_cves", 0))
	score += float64(d.CriticalCVECount) * 5.0

	d.OutdatedSoftware = intel.MetaBool(meta, "outdated_software")
	if d.OutdatedSoftware {
		score += 15
	}
	d.Misconfigured = intel.MetaBool(meta, "misconfigured")
	if d.Misconfigured {
		score += 20
	}
	d.Unpatched = intel.MetaBool(meta, "unpatched")
	if d.Unpatched {
		score += 25
	}
	d.WeakAuth = intel.MetaBool(meta, "weak_auth")
	if d.WeakAuth {
		score += 15
	}
	d.DefaultCredentials = intel.MetaBool(meta, "default_credentials")
	if d.DefaultCredentials {
		score += 30
	}

	d.ExposureScore = intel.Clamp100(score)
	d.ExposureLevel = intel.LevelFromExposure(d.ExposureScore)
	return d
}
