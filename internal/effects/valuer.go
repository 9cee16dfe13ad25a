package effects

import (
	"fmt"

	"idleforge/internal/numeric"

	"github.com/shopspring/decimal"
)

// Valuer yields the current magnitude of an effect. It is called on every
// aggregation and never cached, so values tied to live state stay current.
type Valuer interface {
	CurrentValue() (decimal.Decimal, error)
}

// Describer is implemented by valuers that can explain themselves in
// registry listings.
type Describer interface {
	Describe() string
}

type Const struct {
	Value decimal.Decimal
}

func (c Const) CurrentValue() (decimal.Decimal, error) { return c.Value, nil }

func (c Const) Describe() string { return "const " + c.Value.String() }

// ValueFunc adapts a plain function. Prefer Const or LevelScaled where they
// fit; a ValueFunc cannot describe itself. Nothing observes the state it
// reads, so when its result changes the owner must call Registry.Touch on
// its bucket or cached rates stay stale.
type ValueFunc func() (decimal.Decimal, error)

func (f ValueFunc) CurrentValue() (decimal.Decimal, error) { return f() }

type LevelSource interface {
	Level(id string) int64
}

// LevelScaled evaluates to Base + PerLevel*level, reading the level from
// Source on every call.
type LevelScaled struct {
	Source   LevelSource
	ID       string
	Base     decimal.Decimal
	PerLevel decimal.Decimal
}

func (l LevelScaled) CurrentValue() (decimal.Decimal, error) {
	if l.Source == nil {
		return numeric.Zero, fmt.Errorf("level source missing for %q", l.ID)
	}
	level := l.Source.Level(l.ID)
	return l.Base.Add(l.PerLevel.Mul(numeric.FromInt(level))), nil
}

func (l LevelScaled) Describe() string {
	level := int64(0)
	if l.Source != nil {
		level = l.Source.Level(l.ID)
	}
	return fmt.Sprintf("%s + %s*level(%s=%d)", l.Base.String(), l.PerLevel.String(), l.ID, level)
}
