package catalog

import (
	"errors"
	"strings"
	"testing"

	"idleforge/internal/effects"
	"idleforge/internal/numeric"
)

func TestDefaultCatalogCompiles(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(c.Resources) == 0 || len(c.Producers) == 0 {
		t.Fatalf("default catalog is empty")
	}
	miner, ok := c.Producer("miner")
	if !ok {
		t.Fatalf("miner missing")
	}
	if !miner.BaseRate.Equal(numeric.MustParse("0.5")) || miner.Yields != "gold" {
		t.Fatalf("unexpected miner: %+v", miner)
	}
	skill, ok := c.Skill("deep_veins")
	if !ok || skill.Effect.Kind != effects.Multiplicative || skill.Effect.Target != effects.All {
		t.Fatalf("unexpected skill: %+v", skill)
	}
	if c.Prestige.Source != "gold" || c.Prestige.Currency != "souls" {
		t.Fatalf("unexpected prestige: %+v", c.Prestige)
	}
}

func TestCostAt(t *testing.T) {
	cost := Cost{Base: numeric.MustParse("10"), Growth: numeric.MustParse("1.15")}
	tests := []struct {
		owned int64
		want  string
	}{
		{0, "10"},
		{1, "11.5"},
		{2, "13.225"},
	}
	for _, tc := range tests {
		if got := cost.At(tc.owned); !got.Equal(numeric.MustParse(tc.want)) {
			t.Fatalf("owned=%d got=%s want=%s", tc.owned, got, tc.want)
		}
	}
}

func TestParseRejectsBrokenReferences(t *testing.T) {
	raw := `
resources:
  - id: gold
    unlocked: true
producers:
  - id: miner
    category: miners
    yields: silver
    base_rate: "1"
    cost: { resource: gold, base: "10", growth: "1.1" }
  - id: miner
    category: miners
    yields: gold
    base_rate: "abc"
    cost: { resource: gold, base: "10" }
achievements:
  - id: a
    reward: { system: global-production, kind: exponential, value: "2" }
`
	_, err := Parse([]byte(raw))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
	for _, want := range []string{"unknown resource \"silver\"", "duplicate id \"miner\"", "base_rate", "unknown effect kind"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("resources: [")); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestLevelledEffectDefaultsBaseToNeutral(t *testing.T) {
	raw := `
resources:
  - id: gold
skills:
  - id: s
    max_level: 3
    cost: { resource: gold, base: "1" }
    effect: { system: manual, target: gold, kind: additive, per_level: "2" }
`
	c, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !c.Skills[0].Effect.Base.IsZero() {
		t.Fatalf("additive base got %s want 0", c.Skills[0].Effect.Base)
	}
	if !c.Skills[0].Cost.Growth.Equal(numeric.One) {
		t.Fatalf("growth default got %s want 1", c.Skills[0].Cost.Growth)
	}
}
