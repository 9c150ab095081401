package exposure

import (
	"math"

	"argus/pkg/intel"
)

// piiFields is the fixed set of PII field names that count toward identity
// exposure. Unknown field names in metadata are ignored.
var piiFields = map[string]bool{
	"ssn":            true,
	"passport":       true,
	"driver_license": true,
	"credit_card":    true,
	"bank_account":   true,
	"medical_record": true,
}

// IdentityModel scores exposure of personal identity, conditioned on entity type.
type IdentityModel struct{}

// IdentityDetail is the per-call breakdown of an identity exposure score.
type IdentityDetail struct {
	ExposureScore    float64     `json:"exposure_score"`
	ExposureLevel    intel.Level `json:"exposure_level"`
	BreachFound      bool        `json:"breach_found"`
	PublicProfile    bool        `json:"public_profile"`
	Followers        int         `json:"followers"`
	ExposedPIIFields []string    `json:"exposed_pii_fields,omitempty"`
	IdentityTheft    bool        `json:"identity_theft"`
	OnlineIdentities int         `json:"online_identities"`
}

// Score returns the 0-100 identity exposure score.
func (IdentityModel) Score(e *intel.Entity) float64 {
	return identityDetail(e).ExposureScore
}

// Details returns the score with its contributing signals.
func (IdentityModel) Details(e *intel.Entity) IdentityDetail {
	return identityDetail(e)
}

func identityDetail(e *intel.Entity) IdentityDetail {
	var d IdentityDetail
	if e == nil {
		d.ExposureLevel = intel.LevelFromExposure(0)
		return d
	}
	meta := e.Meta()

	score := 0.0
	switch e.Type {
	case intel.TypeEmail, intel.TypePhone:
		score += 10
		d.BreachFound = intel.MetaBool(meta, "breach_found") || intel.MetaNumber(meta, "breaches_found", 0) > 0
		if d.BreachFound {
			score += 30
		}
	case intel.TypeSocialHandle:
		score += 5
		d.PublicProfile = intel.MetaBool(meta, "public_profile")
		if d.PublicProfile {
			score += 10
		}
		d.Followers = int(intel.MetaNumber(meta, "followers", 0))
		if d.Followers > 1000 {
			score += 10
		}
	}

	for _, v := range intel.MetaList(meta, "exposed_pii_fields") {
		if name, ok := v.(string); ok && piiFields[name] {
			d.ExposedPIIFields = append(d.ExposedPIIFields, name)
		}
	}
	score += float64(len(d.ExposedPIIFields)) * 10.0

	d.IdentityTheft = intel.MetaBool(meta, "identity_theft")
	if d.IdentityTheft {
		score += 40
	}

	d.OnlineIdentities = int(intel.MetaNumber(meta, "online_identities", 0))
	score += math.Min(float64(d.OnlineIdentities)*3.0, 15.0)

	d.ExposureScore = intel.Clamp100(score)
	d.ExposureLevel = intel.LevelFromExposure(d.ExposureScore)
	return d
}
