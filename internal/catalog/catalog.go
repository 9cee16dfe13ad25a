package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"idleforge/internal/effects"
	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type Catalog struct {
	Resources    []Resource
	Producers    []Producer
	Skills       []Skill
	Achievements []Achievement
	Upgrades     []Upgrade
	Prestige     Prestige
	Manual       Manual
}

type Resource struct {
	ID               string
	Name             string
	Initial          decimal.Decimal
	Visible          bool
	Unlocked         bool
	Accrues          bool
	ResetsOnPrestige bool
}

type Cost struct {
	Resource string
	Base     decimal.Decimal
	Growth   decimal.Decimal
}

// At returns the price of the unit bought when owned are already held.
func (c Cost) At(owned int64) decimal.Decimal {
	return c.Base.Mul(numeric.PowInt(c.Growth, owned))
}

type Producer struct {
	ID       string
	Name     string
	Category string
	Yields   string
	BaseRate decimal.Decimal
	Cost     Cost
}

// Effect describes what a feature registers. Constant rewards use Value,
// levelled rewards use Base + PerLevel*level.
type Effect struct {
	System   string
	Target   string
	Kind     effects.Kind
	Value    decimal.Decimal
	Base     decimal.Decimal
	PerLevel decimal.Decimal
}

type Skill struct {
	ID       string
	Name     string
	MaxLevel int64
	Cost     Cost
	Effect   Effect
}

type Achievement struct {
	ID     string
	Name   string
	Reward Effect
}

type Upgrade struct {
	ID        string
	Name      string
	Cost      Cost
	Reward    Effect
	Permanent bool
}

type Prestige struct {
	Source        string
	Currency      string
	Divisor       decimal.Decimal
	BonusPerPoint decimal.Decimal
}

type Manual struct {
	Resource string
	Base     decimal.Decimal
}

func (c *Catalog) Resource(id string) (Resource, bool) {
	for _, r := range c.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

func (c *Catalog) Producer(id string) (Producer, bool) {
	for _, p := range c.Producers {
		if p.ID == id {
			return p, true
		}
	}
	return Producer{}, false
}

func (c *Catalog) Skill(id string) (Skill, bool) {
	for _, s := range c.Skills {
		if s.ID == id {
			return s, true
		}
	}
	return Skill{}, false
}

func (c *Catalog) Achievement(id string) (Achievement, bool) {
	for _, a := range c.Achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

func (c *Catalog) Upgrade(id string) (Upgrade, bool) {
	for _, u := range c.Upgrades {
		if u.ID == id {
			return u, true
		}
	}
	return Upgrade{}, false
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return doc.compile()
}
