// Package exposure scores how exposed an entity is along four independent
// dimensions (data, network, identity, infrastructure) and combines them into
// a single 0-100 total weighted by entity category.
package exposure

import (
	"math"

	"argus/pkg/intel"
)

// DataModel scores exposure through breaches, leaks and dark-web presence.
type DataModel struct{}

// DataDetail is the per-call breakdown of a data exposure score.
type DataDetail struct {
	ExposureScore     float64     `json:"exposure_score"`
	ExposureLevel     intel.Level `json:"exposure_level"`
	BreachCount       int         `json:"breach_count"`
	DarkWebMentions   bool        `json:"dark_web_mentions"`
	PIIExposed        bool        `json:"pii_exposed"`
	LeakedCredentials bool        `json:"leaked_credentials"`
	DatabaseDump      bool        `json:"database_dump"`
	PasteSiteMentions int         `json:"paste_site_mentions"`
}

// Score returns the 0-100 data exposure score.
func (DataModel) Score(e *intel.Entity) float64 {
	d := dataDetail(e)
	return d.ExposureScore
}

// Details returns the score with its contributing signals.
func (DataModel) Details(e *intel.Entity) DataDetail {
	return dataDetail(e)
}

func dataDetail(e *intel.Entity) DataDetail {
	var d DataDetail
	if e == nil {
		d.ExposureLevel = intel.LevelFromExposure(0)
		return d
	}
	meta := e.Meta()

	d.BreachCount = int(intel.MetaNumber(meta, "breaches_found", 0))
	d.DarkWebMentions = intel.MetaBool(meta, "dark_web_mentions")
	d.PIIExposed = intel.MetaBool(meta, "pii_exposed")
	d.LeakedCredentials = intel.MetaBool(meta, "leaked_credentials")
	d.DatabaseDump = intel.MetaBool(meta, "database_dump")
	d.PasteSiteMentions = int(intel.MetaNumber(meta, "paste_mentions", 0))

	score := math.Min(float64(d.BreachCount)*15.0, 40.0)
	if d.DarkWebMentions {
		score += 25
	}
	if d.PIIExposed {
		score += 20
	}
	if d.LeakedCredentials {
		score += 30
	}
	if d.DatabaseDump {
		score += 25
	}
	score += math.Min(float64(d.PasteSiteMentions)*5.0, 15.0)

	d.ExposureScore = intel.Clamp100(score)
	d.ExposureLevel = intel.LevelFromExposure(d.ExposureScore)
	return d
}
