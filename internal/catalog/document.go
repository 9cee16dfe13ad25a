package catalog

import (
	"fmt"
	"strings"

	"idleforge/internal/effects"
	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

// document mirrors the YAML layout. Decimals stay strings until compile so
// precision is never routed through float64.
type document struct {
	Resources []struct {
		ID               string `yaml:"id"`
		Name             string `yaml:"name"`
		Initial          string `yaml:"initial"`
		Visible          bool   `yaml:"visible"`
		Unlocked         bool   `yaml:"unlocked"`
		Accrues          bool   `yaml:"accrues"`
		ResetsOnPrestige bool   `yaml:"resets_on_prestige"`
	} `yaml:"resources"`
	Producers []struct {
		ID       string  `yaml:"id"`
		Name     string  `yaml:"name"`
		Category string  `yaml:"category"`
		Yields   string  `yaml:"yields"`
		BaseRate string  `yaml:"base_rate"`
		Cost     costDoc `yaml:"cost"`
	} `yaml:"producers"`
	Skills []struct {
		ID       string    `yaml:"id"`
		Name     string    `yaml:"name"`
		MaxLevel int64     `yaml:"max_level"`
		Cost     costDoc   `yaml:"cost"`
		Effect   effectDoc `yaml:"effect"`
	} `yaml:"skills"`
	Achievements []struct {
		ID     string    `yaml:"id"`
		Name   string    `yaml:"name"`
		Reward effectDoc `yaml:"reward"`
	} `yaml:"achievements"`
	Upgrades []struct {
		ID        string    `yaml:"id"`
		Name      string    `yaml:"name"`
		Cost      costDoc   `yaml:"cost"`
		Reward    effectDoc `yaml:"reward"`
		Permanent bool      `yaml:"permanent"`
	} `yaml:"upgrades"`
	Prestige struct {
		Source        string `yaml:"source"`
		Currency      string `yaml:"currency"`
		Divisor       string `yaml:"divisor"`
		BonusPerPoint string `yaml:"bonus_per_point"`
	} `yaml:"prestige"`
	Manual struct {
		Resource string `yaml:"resource"`
		Base     string `yaml:"base"`
	} `yaml:"manual"`
}

type costDoc struct {
	Resource string `yaml:"resource"`
	Base     string `yaml:"base"`
	Growth   string `yaml:"growth"`
}

type effectDoc struct {
	System   string `yaml:"system"`
	Target   string `yaml:"target"`
	Kind     string `yaml:"kind"`
	Value    string `yaml:"value"`
	Base     string `yaml:"base"`
	PerLevel string `yaml:"per_level"`
}

type compiler struct {
	errs []string
}

func (c *compiler) fail(format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *compiler) dec(field, raw, fallback string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	d, err := numeric.Parse(raw)
	if err != nil {
		c.fail("%s: %v", field, err)
		return numeric.Zero
	}
	return d
}

func (c *compiler) id(field, raw string, seen map[string]bool) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		c.fail("%s: id is required", field)
		return id
	}
	if seen[id] {
		c.fail("%s: duplicate id %q", field, id)
	}
	seen[id] = true
	return id
}

func (c *compiler) cost(field string, in costDoc, resources map[string]bool) Cost {
	out := Cost{
		Resource: strings.TrimSpace(in.Resource),
		Base:     c.dec(field+".base", in.Base, ""),
		Growth:   c.dec(field+".growth", in.Growth, "1"),
	}
	if !resources[out.Resource] {
		c.fail("%s.resource: unknown resource %q", field, out.Resource)
	}
	if out.Base.IsNegative() {
		c.fail("%s.base: must be >= 0", field)
	}
	if !out.Growth.IsPositive() {
		c.fail("%s.growth: must be > 0", field)
	}
	return out
}

func (c *compiler) effect(field string, in effectDoc, levelled bool) Effect {
	out := Effect{
		System: strings.TrimSpace(in.System),
		Target: strings.TrimSpace(in.Target),
		Kind:   effects.Kind(strings.TrimSpace(in.Kind)),
	}
	if out.Target == "" {
		out.Target = effects.All
	}
	if out.System == "" {
		c.fail("%s.system: required", field)
	}
	neutral, known := effects.Neutral(out.Kind)
	if !known {
		c.fail("%s.kind: unknown effect kind %q", field, in.Kind)
	}
	if levelled {
		out.Base = c.dec(field+".base", in.Base, neutral.String())
		out.PerLevel = c.dec(field+".per_level", in.PerLevel, "")
	} else {
		out.Value = c.dec(field+".value", in.Value, "")
	}
	return out
}

func (d document) compile() (*Catalog, error) {
	c := &compiler{}
	out := &Catalog{}

	resources := make(map[string]bool)
	for i, r := range d.Resources {
		field := fmt.Sprintf("resources[%d]", i)
		out.Resources = append(out.Resources, Resource{
			ID:               c.id(field, r.ID, resources),
			Name:             r.Name,
			Initial:          c.dec(field+".initial", r.Initial, "0"),
			Visible:          r.Visible,
			Unlocked:         r.Unlocked,
			Accrues:          r.Accrues,
			ResetsOnPrestige: r.ResetsOnPrestige,
		})
	}

	seen := make(map[string]bool)
	for i, p := range d.Producers {
		field := fmt.Sprintf("producers[%d]", i)
		prod := Producer{
			ID:       c.id(field, p.ID, seen),
			Name:     p.Name,
			Category: strings.TrimSpace(p.Category),
			Yields:   strings.TrimSpace(p.Yields),
			BaseRate: c.dec(field+".base_rate", p.BaseRate, ""),
			Cost:     c.cost(field+".cost", p.Cost, resources),
		}
		if prod.Category == "" {
			c.fail("%s.category: required", field)
		}
		if !resources[prod.Yields] {
			c.fail("%s.yields: unknown resource %q", field, prod.Yields)
		}
		out.Producers = append(out.Producers, prod)
	}

	seen = make(map[string]bool)
	for i, s := range d.Skills {
		field := fmt.Sprintf("skills[%d]", i)
		skill := Skill{
			ID:       c.id(field, s.ID, seen),
			Name:     s.Name,
			MaxLevel: s.MaxLevel,
			Cost:     c.cost(field+".cost", s.Cost, resources),
			Effect:   c.effect(field+".effect", s.Effect, true),
		}
		if skill.MaxLevel <= 0 {
			c.fail("%s.max_level: must be > 0", field)
		}
		out.Skills = append(out.Skills, skill)
	}

	seen = make(map[string]bool)
	for i, a := range d.Achievements {
		field := fmt.Sprintf("achievements[%d]", i)
		out.Achievements = append(out.Achievements, Achievement{
			ID:     c.id(field, a.ID, seen),
			Name:   a.Name,
			Reward: c.effect(field+".reward", a.Reward, false),
		})
	}

	seen = make(map[string]bool)
	for i, u := range d.Upgrades {
		field := fmt.Sprintf("upgrades[%d]", i)
		out.Upgrades = append(out.Upgrades, Upgrade{
			ID:        c.id(field, u.ID, seen),
			Name:      u.Name,
			Cost:      c.cost(field+".cost", u.Cost, resources),
			Reward:    c.effect(field+".reward", u.Reward, false),
			Permanent: u.Permanent,
		})
	}

	out.Prestige = Prestige{
		Source:        strings.TrimSpace(d.Prestige.Source),
		Currency:      strings.TrimSpace(d.Prestige.Currency),
		Divisor:       c.dec("prestige.divisor", d.Prestige.Divisor, "1000000"),
		BonusPerPoint: c.dec("prestige.bonus_per_point", d.Prestige.BonusPerPoint, "0.02"),
	}
	if out.Prestige.Source != "" || out.Prestige.Currency != "" {
		if !resources[out.Prestige.Source] {
			c.fail("prestige.source: unknown resource %q", out.Prestige.Source)
		}
		if !resources[out.Prestige.Currency] {
			c.fail("prestige.currency: unknown resource %q", out.Prestige.Currency)
		}
		if !out.Prestige.Divisor.IsPositive() {
			c.fail("prestige.divisor: must be > 0")
		}
	}

	out.Manual = Manual{
		Resource: strings.TrimSpace(d.Manual.Resource),
		Base:     c.dec("manual.base", d.Manual.Base, "1"),
	}
	if out.Manual.Resource != "" && !resources[out.Manual.Resource] {
		c.fail("manual.resource: unknown resource %q", out.Manual.Resource)
	}

	if len(c.errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(c.errs, "; "))
	}
	return out, nil
}
