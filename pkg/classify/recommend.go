package classify

import "argus/pkg/intel"

// Severity contributes generic urgency text; the anomaly type contributes
// domain-specific actions. The two lists are concatenated verbatim so
// downstream report templates keep stable ordering.
var severityActions = map[intel.Level][]string{
	intel.LevelCritical: {
		"escalate to the incident response team immediately",
		"freeze automated enrichment for the affected entities",
	},
	intel.LevelHigh: {
		"review the affected entities within 24 hours",
		"increase collection frequency for the affected entities",
	},
	intel.LevelMedium: {
		"queue the affected entities for analyst review",
	},
	intel.LevelLow: {
		"monitor on the next scheduled collection pass",
	},
	intel.LevelInfo: {
		"no action required; retained for trend analysis",
	},
}

var typeActions = map[AnomalyType][]string{
	AnomalyBehavioral: {
		"compare activity against the entity's historical baseline",
		"check for automation or scripted interaction patterns",
	},
	AnomalyInfrastructure: {
		"verify hosting provider and ASN ownership",
		"scan for honeypot or sinkhole characteristics before engaging",
	},
	AnomalyDataQuality: {
		"re-run collection with additional sources to fill missing fields",
		"lower the entity's weight in aggregate scoring until verified",
	},
	AnomalyTemporal: {
		"correlate the activity window against known campaign timelines",
	},
	AnomalySemantic: {
		"audit the tagging pipeline that produced the conflicting labels",
	},
	AnomalyRelationship: {
		"validate both endpoints through an independent source",
		"inspect neighboring edges for coordinated link injection",
	},
}

// recommendations builds the action list for a (severity, type) pair.
func recommendations(severity intel.Level, t AnomalyType) []string {
	out := make([]string, 0, 4)
	out = append(out, severityActions[severity]...)
	out = append(out, typeActions[t]...)
	return out
}
