// Package intel defines the entity/relationship model shared by the risk,
// exposure, classification and outlier packages.
package intel

import (
	"encoding/json"
	"math"
	"time"
)

// EntityType is the closed set of OSINT object categories.
type EntityType string

const (
	TypeDomain        EntityType = "domain"
	TypeIPAddress     EntityType = "ip_address"
	TypeEmail         EntityType = "email"
	TypePhone         EntityType = "phone"
	TypeSocialHandle  EntityType = "social_handle"
	TypePerson        EntityType = "person"
	TypeCompany       EntityType = "company"
	TypeWebsite       EntityType = "website"
	TypeService       EntityType = "service"
	TypeLocation      EntityType = "location"
	TypeDevice        EntityType = "device"
	TypeNetwork       EntityType = "network"
	TypeVulnerability EntityType = "vulnerability"
	TypeThreatActor   EntityType = "threat_actor"
	TypeMalware       EntityType = "malware"
	TypeIndicator     EntityType = "indicator"
)

// entityTypeCodes is the fixed enum->int table used by feature extraction.
// Positions are part of the scoring contract; do not reorder.
var entityTypeCodes = map[EntityType]int{
	TypeDomain:        0,
	TypeIPAddress:     1,
	TypeEmail:         2,
	TypePhone:         3,
	TypeSocialHandle:  4,
	TypePerson:        5,
	TypeCompany:       6,
	TypeWebsite:       7,
	TypeService:       8,
	TypeLocation:      9,
	TypeDevice:        10,
	TypeNetwork:       11,
	TypeVulnerability: 12,
	TypeThreatActor:   13,
	TypeMalware:       14,
	TypeIndicator:     15,
}

// EncodeEntityType maps an entity type to its integer code, -1 if unknown.
func EncodeEntityType(t EntityType) int {
	if code, ok := entityTypeCodes[t]; ok {
		return code
	}
	return -1
}

// RelationType is the fixed relationship vocabulary.
type RelationType string

const (
	RelResolvesTo       RelationType = "resolves_to"
	RelHosts            RelationType = "hosts"
	RelRegisteredTo     RelationType = "registered_to"
	RelCommunicatesWith RelationType = "communicates_with"
	RelConnectsTo       RelationType = "connects_to"
	RelOwns             RelationType = "owns"
	RelWorksAt          RelationType = "works_at"
	RelMemberOf         RelationType = "member_of"
	RelLocatedAt        RelationType = "located_at"
	RelTargets          RelationType = "targets"
	RelExploits         RelationType = "exploits"
	RelCompromises      RelationType = "compromises"
	RelUses             RelationType = "uses"
	RelDelivers         RelationType = "delivers"
	RelAssociatedWith   RelationType = "associated_with"
)

var relationTypeCodes = map[RelationType]int{
	RelResolvesTo:       0,
	RelHosts:            1,
	RelRegisteredTo:     2,
	RelCommunicatesWith: 3,
	RelConnectsTo:       4,
	RelOwns:             5,
	RelWorksAt:          6,
	RelMemberOf:         7,
	RelLocatedAt:        8,
	RelTargets:          9,
	RelExploits:         10,
	RelCompromises:      11,
	RelUses:             12,
	RelDelivers:         13,
	RelAssociatedWith:   14,
}

// highRiskRelations get a 1.5x multiplier on derived relationship risk.
var highRiskRelations = map[RelationType]bool{
	RelTargets:     true,
	RelExploits:    true,
	RelCompromises: true,
	RelDelivers:    true,
}

// EncodeRelationType maps a relationship type to its integer code, -1 if unknown.
func EncodeRelationType(t RelationType) int {
	if code, ok := relationTypeCodes[t]; ok {
		return code
	}
	return -1
}

// IsHighRiskRelation reports whether the type carries the 1.5x risk multiplier.
func IsHighRiskRelation(t RelationType) bool { return highRiskRelations[t] }

// Entity is a discovered OSINT object. Owned by the collection layer;
// read-only inside the assessment engine.
type Entity struct {
	ID                string         `json:"id"`
	Type              EntityType     `json:"type"`
	Value             string         `json:"value"`
	RiskScore         float64        `json:"risk_score"` // 0..1, owned upstream
	Confidence        float64        `json:"confidence"` // 0..1, owned upstream
	RelationshipCount int            `json:"relationship_count"`
	FirstSeen         time.Time      `json:"first_seen"`
	LastSeen          time.Time      `json:"last_seen"`
	Verified          bool           `json:"verified"`
	Metadata          map[string]any `json:"metadata"`
	Tags              []string       `json:"tags"`
}

// Relationship is a directed edge between two entities.
type Relationship struct {
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Type       RelationType   `json:"type"`
	Confidence float64        `json:"confidence"` // 0..1
	Weight     float64        `json:"weight"`     // 0..1
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RiskScore derives the relationship's own risk from confidence, weight and
// the high-risk type multiplier: min(confidence*weight*mult, 1.0).
func (r *Relationship) RiskScore() float64 {
	mult := 1.0
	if IsHighRiskRelation(r.Type) {
		mult = 1.5
	}
	return math.Min(Clamp01(r.Confidence)*Clamp01(r.Weight)*mult, 1.0)
}

// Level is a categorical severity bucket.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelInfo     Level = "info"
)

// LevelFromUnit maps a 0..1 score to a level. Used for base entity risk and
// classifier severity. Breakpoints are exact: 0.8 is critical, 0.79999 is high.
func LevelFromUnit(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelCritical
	case score >= 0.6:
		return LevelHigh
	case score >= 0.4:
		return LevelMedium
	case score >= 0.2:
		return LevelLow
	default:
		return LevelInfo
	}
}

// LevelFromExposure maps a 0..100 exposure score to a level. The 76/51/26
// breakpoints evolved independently from the entity-risk table below; both
// must stay distinct to keep historical scores comparable.
func LevelFromExposure(score float64) Level {
	switch {
	case score >= 76:
		return LevelCritical
	case score >= 51:
		return LevelHigh
	case score >= 26:
		return LevelMedium
	default:
		return LevelLow
	}
}

// LevelFromRisk maps a 0..100 aggregate risk score to a level.
func LevelFromRisk(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	case score >= 20:
		return LevelLow
	default:
		return LevelInfo
	}
}

// LevelOrdinal returns a numeric rank for a level, info lowest.
func LevelOrdinal(l Level) float64 {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp100 bounds v to [0,100].
func Clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Meta returns the entity metadata as a map, tolerating absent metadata.
// Collectors sometimes hand us metadata as a JSON string; parse failures are
// treated as empty rather than surfaced.
func (e *Entity) Meta() map[string]any {
	return normalizeMeta(e.Metadata)
}

// Meta returns the relationship metadata map with the same tolerance rules.
func (r *Relationship) Meta() map[string]any {
	return normalizeMeta(r.Metadata)
}

func normalizeMeta(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	// A single "_raw" string entry means the collector could not parse the
	// payload upstream; try once here, fall back to empty.
	if raw, ok := m["_raw"].(string); ok && len(m) == 1 {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return parsed
		}
		return map[string]any{}
	}
	return m
}

// MetaNumber reads a numeric metadata value, accepting float64, int and
// json.Number encodings. Returns def when absent or malformed.
func MetaNumber(m map[string]any, key string, def float64) float64 {
	v, ok := m[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// MetaBool reads a boolean metadata value, accepting bools and the string
// forms collectors emit ("true"/"1"/"yes").
func MetaBool(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1" || b == "yes"
	case float64:
		return b != 0
	default:
		return false
	}
}

// MetaString reads a string metadata value, "" when absent or non-string.
func MetaString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// MetaList reads a list metadata value. JSON decoding yields []any; a single
// scalar is promoted to a one-element list since collectors are inconsistent
// about singletons.
func MetaList(m map[string]any, key string) []any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case string, float64, int, bool:
		return []any{l}
	default:
		return nil
	}
}

// MetaLen returns the number of elements under a list-valued key.
func MetaLen(m map[string]any, key string) int {
	return len(MetaList(m, key))
}
