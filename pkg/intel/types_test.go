package intel

import (
	"encoding/json"
	"math"
	"testing"
)

func TestLevelFromUnitBreakpoints(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{0.8, LevelCritical},
		{0.79999, LevelHigh},
		{0.6, LevelHigh},
		{0.59999, LevelMedium},
		{0.4, LevelMedium},
		{0.2, LevelLow},
		{0.19999, LevelInfo},
		{0, LevelInfo},
		{1, LevelCritical},
	}
	for _, c := range cases {
		if got := LevelFromUnit(c.score); got != c.want {
			t.Errorf("LevelFromUnit(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestLevelFromExposureBreakpoints(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{76, LevelCritical},
		{75.9, LevelHigh},
		{51, LevelHigh},
		{50.9, LevelMedium},
		{26, LevelMedium},
		{25.9, LevelLow},
		{0, LevelLow},
	}
	for _, c := range cases {
		if got := LevelFromExposure(c.score); got != c.want {
			t.Errorf("LevelFromExposure(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestLevelFromRiskBreakpoints(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{80, LevelCritical},
		{79.9, LevelHigh},
		{60, LevelHigh},
		{40, LevelMedium},
		{20, LevelLow},
		{19.9, LevelInfo},
	}
	for _, c := range cases {
		if got := LevelFromRisk(c.score); got != c.want {
			t.Errorf("LevelFromRisk(%v) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestRelationshipRiskScore(t *testing.T) {
	// High-risk type gets the 1.5x multiplier and the result caps at 1.0.
	r := &Relationship{Type: RelTargets, Confidence: 0.9, Weight: 1.0}
	if got := r.RiskScore(); got != 1.0 {
		t.Errorf("targets risk = %v, want 1.0", got)
	}

	r = &Relationship{Type: RelResolvesTo, Confidence: 0.5, Weight: 0.8}
	if got := r.RiskScore(); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("resolves_to risk = %v, want 0.4", got)
	}

	// Out-of-range inputs are clamped before multiplying.
	r = &Relationship{Type: RelExploits, Confidence: 1.5, Weight: -0.2}
	if got := r.RiskScore(); got != 0 {
		t.Errorf("clamped risk = %v, want 0", got)
	}
}

func TestEncodeEntityType(t *testing.T) {
	if got := EncodeEntityType(TypeDomain); got != 0 {
		t.Errorf("domain code = %d, want 0", got)
	}
	if got := EncodeEntityType(TypeIndicator); got != 15 {
		t.Errorf("indicator code = %d, want 15", got)
	}
	if got := EncodeEntityType(EntityType("bogus")); got != -1 {
		t.Errorf("unknown code = %d, want -1", got)
	}
}

func TestMetaNormalization(t *testing.T) {
	e := &Entity{}
	if m := e.Meta(); m == nil || len(m) != 0 {
		t.Errorf("nil metadata should normalize to empty map, got %v", m)
	}

	e = &Entity{Metadata: map[string]any{"_raw": `{"breaches_found": 2}`}}
	if got := MetaNumber(e.Meta(), "breaches_found", 0); got != 2 {
		t.Errorf("_raw parse: breaches_found = %v, want 2", got)
	}

	e = &Entity{Metadata: map[string]any{"_raw": "not json at all"}}
	if m := e.Meta(); len(m) != 0 {
		t.Errorf("unparseable _raw should yield empty map, got %v", m)
	}

	// A map that happens to contain _raw alongside other keys is left alone.
	e = &Entity{Metadata: map[string]any{"_raw": "x", "other": 1}}
	if m := e.Meta(); len(m) != 2 {
		t.Errorf("mixed map should pass through, got %v", m)
	}
}

func TestMetaNumber(t *testing.T) {
	m := map[string]any{
		"f": 1.5,
		"i": 3,
		"n": json.Number("7"),
		"s": "nope",
	}
	if got := MetaNumber(m, "f", 0); got != 1.5 {
		t.Errorf("float = %v", got)
	}
	if got := MetaNumber(m, "i", 0); got != 3 {
		t.Errorf("int = %v", got)
	}
	if got := MetaNumber(m, "n", 0); got != 7 {
		t.Errorf("json.Number = %v", got)
	}
	if got := MetaNumber(m, "s", 9); got != 9 {
		t.Errorf("non-numeric should return default, got %v", got)
	}
	if got := MetaNumber(m, "missing", 4); got != 4 {
		t.Errorf("missing should return default, got %v", got)
	}
}

func TestMetaBool(t *testing.T) {
	m := map[string]any{
		"b":    true,
		"s1":   "true",
		"s2":   "1",
		"s3":   "yes",
		"s4":   "no",
		"num":  1.0,
		"zero": 0.0,
	}
	for _, key := range []string{"b", "s1", "s2", "s3", "num"} {
		if !MetaBool(m, key) {
			t.Errorf("MetaBool(%q) = false, want true", key)
		}
	}
	for _, key := range []string{"s4", "zero", "missing"} {
		if MetaBool(m, key) {
			t.Errorf("MetaBool(%q) = true, want false", key)
		}
	}
}

func TestMetaList(t *testing.T) {
	m := map[string]any{
		"list":    []any{"a", "b"},
		"strings": []string{"x", "y", "z"},
		"scalar":  "single",
	}
	if got := MetaLen(m, "list"); got != 2 {
		t.Errorf("list len = %d, want 2", got)
	}
	if got := MetaLen(m, "strings"); got != 3 {
		t.Errorf("strings len = %d, want 3", got)
	}
	// Scalars promote to a one-element list.
	if got := MetaLen(m, "scalar"); got != 1 {
		t.Errorf("scalar len = %d, want 1", got)
	}
	if got := MetaLen(m, "missing"); got != 0 {
		t.Errorf("missing len = %d, want 0", got)
	}
}
