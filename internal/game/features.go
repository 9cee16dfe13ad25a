package game

import (
	"fmt"

	"idleforge/internal/catalog"
	"idleforge/internal/effects"
	"idleforge/internal/numeric"
	"idleforge/internal/production"
	"idleforge/internal/tick"

	"github.com/shopspring/decimal"
)

// skillLevels is the live level table read by levelled skill effects.
type skillLevels map[string]int64

func (l skillLevels) Level(id string) int64 { return l[id] }

func rewardKey(module, id string, e catalog.Effect) effects.Key {
	return effects.Key{
		Module: module,
		Source: id,
		Bucket: effects.Bucket{System: e.System, Target: e.Target, Kind: e.Kind},
	}
}

func (s *Session) skillValuer(sk catalog.Skill) effects.Valuer {
	return effects.LevelScaled{Source: s.skills, ID: sk.ID, Base: sk.Effect.Base, PerLevel: sk.Effect.PerLevel}
}

// LevelSkill buys the next level of a skill. The effect is registered on
// every level so dependents are invalidated; the key never changes.
func (s *Session) LevelSkill(id string) (SkillResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk, ok := s.catalog.Skill(id)
	if !ok {
		return SkillResult{}, fmt.Errorf("%w: %s", ErrUnknownSkill, id)
	}
	lvl := s.skills[id]
	if lvl >= sk.MaxLevel {
		return SkillResult{}, fmt.Errorf("%w: %s is level %d", ErrMaxLevel, id, lvl)
	}
	// Registered before the spend so a rejected key costs nothing. The
	// valuer reads the live level.
	key := rewardKey(ModuleSkills, id, sk.Effect)
	if err := s.effects.Register(key, s.skillValuer(sk)); err != nil {
		return SkillResult{}, fmt.Errorf("register skill %s: %w", id, err)
	}
	cost := sk.Cost.At(lvl)
	if err := s.ledger.Spend(sk.Cost.Resource, cost, false); err != nil {
		if lvl == 0 {
			_ = s.effects.Unregister(key)
		}
		return SkillResult{}, spendError(err, fmt.Sprintf("%s level %d costs %s %s", id, lvl+1, numeric.Format(cost), sk.Cost.Resource))
	}
	s.skills[id] = lvl + 1
	s.log.Info("skill levelled", "skill", id, "level", lvl+1)
	return SkillResult{SkillID: id, Level: lvl + 1, Spent: cost}, nil
}

func (s *Session) SkillLevel(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skills[id]
}

// Progress is the read-only view handed to achievement conditions.
type Progress interface {
	Amount(resourceID string) decimal.Decimal
	TotalEarned(resourceID string) decimal.Decimal
	Owned(producerID string) int64
	SkillLevel(skillID string) int64
	ManualGains() int64
	PrestigeCount() int64
}

// Condition reports whether an achievement has been earned.
type Condition func(Progress) bool

type condition struct {
	id string
	fn Condition
}

type progress struct{ s *Session }

func (p progress) Amount(id string) decimal.Decimal      { return p.s.ledger.Amount(id) }
func (p progress) TotalEarned(id string) decimal.Decimal { return p.s.ledger.TotalEarned(id) }
func (p progress) Owned(id string) int64                 { return p.s.inv.owned[id] }
func (p progress) SkillLevel(id string) int64            { return p.s.skills[id] }
func (p progress) ManualGains() int64                    { return p.s.manualGains }
func (p progress) PrestigeCount() int64                  { return p.s.prestige.count }

// RegisterAchievementCondition attaches an unlock predicate, evaluated once
// per tick until the achievement unlocks.
func (s *Session) RegisterAchievementCondition(id string, fn Condition) error {
	if fn == nil {
		return fmt.Errorf("condition for %s is nil", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.catalog.Achievement(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	s.conditions = append(s.conditions, condition{id: id, fn: fn})
	return nil
}

func (s *Session) evaluateConditions(t tick.Tick) {
	view := progress{s: s}
	for _, c := range s.conditions {
		if s.achievements[c.id] || !s.checkCondition(c, view) {
			continue
		}
		if _, err := s.unlockAchievement(c.id); err != nil {
			s.log.Warn("achievement unlock failed", "achievement", c.id, "tick", t.Number, "err", err)
		}
	}
}

func (s *Session) checkCondition(c condition, view Progress) (met bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("achievement condition panicked", "achievement", c.id, "panic", fmt.Sprint(r))
			met = false
		}
	}()
	return c.fn(view)
}

// UnlockAchievement grants an achievement. It reports false when it was
// already unlocked.
func (s *Session) UnlockAchievement(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlockAchievement(id)
}

func (s *Session) unlockAchievement(id string) (bool, error) {
	a, ok := s.catalog.Achievement(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownAchievement, id)
	}
	if s.achievements[id] {
		return false, nil
	}
	if err := s.effects.Register(rewardKey(ModuleAchievements, id, a.Reward), effects.Const{Value: a.Reward.Value}); err != nil {
		return false, err
	}
	s.achievements[id] = true
	s.log.Info("achievement unlocked", "achievement", id)
	return true, nil
}

func (s *Session) BuyUpgrade(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.catalog.Upgrade(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUpgrade, id)
	}
	if s.upgrades[id] {
		return fmt.Errorf("%w: %s", ErrAlreadyOwned, id)
	}
	cost := u.Cost.At(0)
	key := rewardKey(ModuleMarket, id, u.Reward)
	if err := s.effects.Register(key, effects.Const{Value: u.Reward.Value}); err != nil {
		return err
	}
	if err := s.ledger.Spend(u.Cost.Resource, cost, false); err != nil {
		_ = s.effects.Unregister(key)
		return spendError(err, fmt.Sprintf("%s costs %s %s", id, numeric.Format(cost), u.Cost.Resource))
	}
	s.upgrades[id] = true
	s.log.Info("upgrade bought", "upgrade", id)
	return nil
}

// Gain performs one manual gain on a resource.
func (s *Session) Gain(resourceID string) (GainResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Has(resourceID) {
		return GainResult{}, fmt.Errorf("%w: %s", ErrUnknownResource, resourceID)
	}
	flat := s.catalog.Manual.Base.Add(s.effects.Aggregate(ManualSystem, resourceID, effects.Additive))
	pct := s.effects.Aggregate(ManualSystem, resourceID, effects.Percentage)
	gained := numeric.ClampZero(flat.Mul(numeric.One.Add(pct.Div(decimal.NewFromInt(100)))))
	if err := s.ledger.Add(resourceID, gained); err != nil {
		return GainResult{}, err
	}
	s.manualGains++
	return GainResult{ResourceID: resourceID, Gained: gained, Amount: s.ledger.Amount(resourceID)}, nil
}

func (s *Session) availablePrestige() decimal.Decimal {
	cfg := s.catalog.Prestige
	if cfg.Source == "" || !cfg.Divisor.IsPositive() {
		return numeric.Zero
	}
	potential := numeric.FloorSqrt(s.ledger.TotalEarned(cfg.Source).Div(cfg.Divisor))
	return numeric.ClampZero(potential.Sub(s.prestige.claimed))
}

func (s *Session) prestigeBonus() decimal.Decimal {
	return numeric.One.Add(s.catalog.Prestige.BonusPerPoint.Mul(s.prestige.points))
}

func (s *Session) prestigeKey() effects.Key {
	return effects.Key{
		Module: ModulePrestige,
		Source: prestigeBonusKey,
		Bucket: effects.Bucket{System: production.GlobalSystem, Target: effects.All, Kind: effects.Multiplicative},
	}
}

// Prestige converts lifetime earnings into prestige points and resets the
// run. Skills and achievements survive, as do permanent upgrades.
func (s *Session) Prestige() (PrestigeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.catalog.Prestige
	if cfg.Source == "" || cfg.Currency == "" {
		return PrestigeResult{}, ErrPrestigeUnavailable
	}
	gain := s.availablePrestige()
	if !gain.IsPositive() {
		return PrestigeResult{}, fmt.Errorf("%w: %s earned %s", ErrPrestigeTooEarly,
			cfg.Source, numeric.Format(s.ledger.TotalEarned(cfg.Source)))
	}

	reset := s.ledger.ResetForPrestige()
	s.inv.reset()
	for _, u := range s.catalog.Upgrades {
		if !s.upgrades[u.ID] || u.Permanent {
			continue
		}
		if err := s.effects.Unregister(rewardKey(ModuleMarket, u.ID, u.Reward)); err != nil {
			s.log.Warn("unregister upgrade on prestige", "upgrade", u.ID, "err", err)
		}
		delete(s.upgrades, u.ID)
	}

	if v, ok := s.ledger.Get(cfg.Currency); ok && !v.Unlocked {
		_ = s.ledger.Unlock(cfg.Currency)
	}
	if err := s.ledger.Add(cfg.Currency, gain); err != nil {
		s.log.Error("credit prestige currency", "currency", cfg.Currency, "err", err)
	}
	s.prestige.claimed = s.prestige.claimed.Add(gain)
	s.prestige.points = s.prestige.points.Add(gain)
	s.prestige.count++
	if err := s.effects.Register(s.prestigeKey(), effects.Const{Value: s.prestigeBonus()}); err != nil {
		s.log.Error("register prestige bonus", "err", err)
	}
	s.production.MarkAllDirty()

	s.log.Info("prestige", "gained", gain.String(), "points", s.prestige.points.String(), "count", s.prestige.count)
	return PrestigeResult{Gained: gain, Points: s.prestige.points, Count: s.prestige.count, Reset: reset}, nil
}
