package classify

import (
	"fmt"
	"strings"

	"argus/pkg/features"
	"argus/pkg/intel"
)

// entityRule is one detector in the fixed rule set. Confidence constants are
// frozen; primary-type selection depends on them and on declaration order.
type entityRule struct {
	anomalyType AnomalyType
	confidence  float64
	detect      func(e *intel.Entity, vec []float64) (bool, []string, string)
}

// threatTags on person/company entities suggest the entity record itself has
// been poisoned or mislabeled by a collector.
var threatTags = map[string]bool{
	"malware":    true,
	"phishing":   true,
	"botnet":     true,
	"ransomware": true,
	"apt":        true,
	"c2":         true,
	"exploit":    true,
	"threat":     true,
}

// entityRules run unconditionally, in this order. Behavioral is first on
// purpose: ties in confidence resolve toward it.
var entityRules = []entityRule{
	{
		anomalyType: AnomalyBehavioral,
		confidence:  0.75,
		detect: func(e *intel.Entity, vec []float64) (bool, []string, string) {
			var indicators []string
			if vec[features.FeatUpdateFrequency] > 10 {
				indicators = append(indicators, "excessive_update_frequency")
			}
			if intel.Clamp01(e.RiskScore) > 0.8 {
				indicators = append(indicators, fmt.Sprintf("high_risk_score:%.2f", e.RiskScore))
			}
			if e.RelationshipCount > 50 {
				indicators = append(indicators, fmt.Sprintf("excessive_relationships:%d", e.RelationshipCount))
			}
			if len(indicators) == 0 {
				return false, nil, ""
			}
			return true, indicators, "entity behavior deviates from expected activity patterns"
		},
	},
	{
		anomalyType: AnomalyInfrastructure,
		confidence:  0.80,
		detect: func(e *intel.Entity, vec []float64) (bool, []string, string) {
			var indicators []string
			isAddr := e.Type == intel.TypeDomain || e.Type == intel.TypeIPAddress
			if isAddr && intel.Clamp01(e.RiskScore) > 0.7 && intel.Clamp01(e.Confidence) < 0.4 {
				indicators = append(indicators, "possible_honeypot")
			}
			if len(e.Meta()) == 0 {
				indicators = append(indicators, "missing_metadata")
			}
			if e.Type == intel.TypeService && intel.Clamp01(e.RiskScore) > 0.6 {
				indicators = append(indicators, "high_risk_service")
			}
			if len(indicators) == 0 {
				return false, nil, ""
			}
			return true, indicators, "infrastructure fingerprint is inconsistent with its risk profile"
		},
	},
	{
		anomalyType: AnomalyDataQuality,
		confidence:  0.60,
		detect: func(e *intel.Entity, vec []float64) (bool, []string, string) {
			var indicators []string
			if vec[features.FeatMetadataRichness] < 0.3 {
				indicators = append(indicators, "sparse_metadata")
			}
			if (e.Type == intel.TypePerson || e.Type == intel.TypeCompany) && intel.MetaString(e.Meta(), "name") == "" {
				indicators = append(indicators, "missing_name")
			}
			if intel.Clamp01(e.Confidence) < 0.3 {
				indicators = append(indicators, fmt.Sprintf("low_confidence:%.2f", e.Confidence))
			}
			if len(indicators) == 0 {
				return false, nil, ""
			}
			return true, indicators, "entity record is too sparse or uncertain to trust"
		},
	},
	{
		anomalyType: AnomalyTemporal,
		confidence:  0.70,
		detect: func(e *intel.Entity, vec []float64) (bool, []string, string) {
			var indicators []string
			firstAge := vec[features.FeatFirstSeenAgeDays]
			lastAge := vec[features.FeatLastUpdatedAgeDays]
			if firstAge > 0 && firstAge < 7 && e.RelationshipCount > 20 {
				indicators = append(indicators, "rapid_relationship_growth")
			}
			// A zero LastSeen also yields age 0; only a real observation
			// counts as reactivation.
			if !e.LastSeen.IsZero() && lastAge < 1 && firstAge > 90 {
				indicators = append(indicators, "reactivation_after_dormancy")
			}
			if len(indicators) == 0 {
				return false, nil, ""
			}
			return true, indicators, "entity activity timeline shows an abnormal pattern"
		},
	},
	{
		anomalyType: AnomalySemantic,
		confidence:  0.65,
		detect: func(e *intel.Entity, vec []float64) (bool, []string, string) {
			if e.Type != intel.TypePerson && e.Type != intel.TypeCompany {
				return false, nil, ""
			}
			var indicators []string
			for _, tag := range e.Tags {
				if threatTags[strings.ToLower(tag)] {
					indicators = append(indicators, "threat_tag:"+strings.ToLower(tag))
				}
			}
			if len(indicators) == 0 {
				return false, nil, ""
			}
			return true, indicators, "threat-related tags on a person/company entity suggest mislabeled data"
		},
	},
}
