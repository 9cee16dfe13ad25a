package game

import (
	"fmt"
	"time"

	"idleforge/internal/effects"
	"idleforge/internal/numeric"
	"idleforge/internal/save"

	"github.com/shopspring/decimal"
)

func (s *Session) Snapshot() save.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.production.ResolveDirty()

	st := save.State{
		Version:      save.Version,
		Revision:     s.revision,
		SavedAt:      time.Now().UTC(),
		Resources:    s.ledger.Snapshot(),
		Producers:    map[string]int64{},
		Skills:       map[string]int64{},
		Achievements: sortedKeys(s.achievements),
		Upgrades:     sortedKeys(s.upgrades),
		Prestige: save.Prestige{
			Count:         s.prestige.count,
			Points:        s.prestige.points.String(),
			ClaimedPoints: s.prestige.claimed.String(),
		},
		PlayTimeMs:  s.scheduler.PlayTime().Milliseconds(),
		Ticks:       s.scheduler.Ticks(),
		ManualGains: s.manualGains,
	}
	for id, n := range s.inv.owned {
		if n > 0 {
			st.Producers[id] = n
		}
	}
	for id, lvl := range s.skills {
		if lvl > 0 {
			st.Skills[id] = lvl
		}
	}
	return st
}

// Revision is the store revision the session was last loaded from or saved
// as. It is sent back on the next save for the conflict check.
func (s *Session) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

func (s *Session) SetRevision(rev string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revision = rev
}

type restoredState struct {
	producers    map[string]int64
	skills       map[string]int64
	achievements []string
	upgrades     []string
	points       decimal.Decimal
	claimed      decimal.Decimal
}

// Restore replaces the session with st. Anything unreadable leaves the
// session hard reset to catalog defaults and returns an ErrSaveCorrupt error.
// Ids the catalog no longer knows are dropped with a warning.
func (s *Session) Restore(st save.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed, err := s.parseState(st)
	if err == nil {
		s.hardReset()
		err = s.ledger.Restore(st.Resources)
	}
	if err != nil {
		s.hardReset()
		s.log.Error("save rejected, reset to defaults", "revision", st.Revision, "err", err)
		return fmt.Errorf("%w: %w", ErrSaveCorrupt, err)
	}

	for id, n := range parsed.producers {
		s.inv.owned[id] = n
	}
	for id, lvl := range parsed.skills {
		s.skills[id] = lvl
	}
	for _, id := range parsed.achievements {
		s.achievements[id] = true
	}
	for _, id := range parsed.upgrades {
		s.upgrades[id] = true
	}
	s.prestige = prestigeState{count: st.Prestige.Count, points: parsed.points, claimed: parsed.claimed}
	s.scheduler.SetPlayTime(time.Duration(st.PlayTimeMs) * time.Millisecond)
	s.scheduler.SetTicks(st.Ticks)
	s.manualGains = max(st.ManualGains, 0)
	s.revision = st.Revision

	s.reapplyEffects()
	s.production.MarkAllDirty()
	s.log.Info("save restored", "revision", st.Revision, "play_time_ms", st.PlayTimeMs)
	return nil
}

func (s *Session) parseState(st save.State) (restoredState, error) {
	out := restoredState{producers: map[string]int64{}, skills: map[string]int64{}}
	if st.Version != save.Version {
		return out, fmt.Errorf("unsupported save version %d", st.Version)
	}
	if st.Resources == nil {
		return out, fmt.Errorf("save has no resources")
	}
	if st.Prestige.Count < 0 || st.PlayTimeMs < 0 {
		return out, fmt.Errorf("negative prestige count or play time")
	}
	var err error
	if out.points, err = parseOptional(st.Prestige.Points); err != nil {
		return out, fmt.Errorf("prestige points: %w", err)
	}
	if out.claimed, err = parseOptional(st.Prestige.ClaimedPoints); err != nil {
		return out, fmt.Errorf("claimed prestige points: %w", err)
	}

	for id, n := range st.Producers {
		if n < 0 {
			return out, fmt.Errorf("producer %s has negative count %d", id, n)
		}
		if _, ok := s.catalog.Producer(id); !ok {
			s.log.Warn("save references unknown producer", "producer", id)
			continue
		}
		out.producers[id] = n
	}
	for id, lvl := range st.Skills {
		if lvl < 0 {
			return out, fmt.Errorf("skill %s has negative level %d", id, lvl)
		}
		sk, ok := s.catalog.Skill(id)
		if !ok {
			s.log.Warn("save references unknown skill", "skill", id)
			continue
		}
		if lvl > sk.MaxLevel {
			s.log.Warn("skill level above max, clamped", "skill", id, "level", lvl, "max", sk.MaxLevel)
			lvl = sk.MaxLevel
		}
		out.skills[id] = lvl
	}
	for _, id := range st.Achievements {
		if _, ok := s.catalog.Achievement(id); !ok {
			s.log.Warn("save references unknown achievement", "achievement", id)
			continue
		}
		out.achievements = append(out.achievements, id)
	}
	for _, id := range st.Upgrades {
		if _, ok := s.catalog.Upgrade(id); !ok {
			s.log.Warn("save references unknown upgrade", "upgrade", id)
			continue
		}
		out.upgrades = append(out.upgrades, id)
	}
	return out, nil
}

func parseOptional(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return numeric.Zero, nil
	}
	d, err := numeric.Parse(raw)
	if err != nil {
		return numeric.Zero, err
	}
	if d.IsNegative() {
		return numeric.Zero, fmt.Errorf("negative value %s", raw)
	}
	return d, nil
}

// reapplyEffects registers every owned reward under its deterministic key.
// Calling it twice leaves the registry unchanged.
func (s *Session) reapplyEffects() {
	for _, sk := range s.catalog.Skills {
		if s.skills[sk.ID] > 0 {
			s.mustRegister(rewardKey(ModuleSkills, sk.ID, sk.Effect), s.skillValuer(sk))
		}
	}
	for _, a := range s.catalog.Achievements {
		if s.achievements[a.ID] {
			s.mustRegister(rewardKey(ModuleAchievements, a.ID, a.Reward), effects.Const{Value: a.Reward.Value})
		}
	}
	for _, u := range s.catalog.Upgrades {
		if s.upgrades[u.ID] {
			s.mustRegister(rewardKey(ModuleMarket, u.ID, u.Reward), effects.Const{Value: u.Reward.Value})
		}
	}
	if s.prestige.points.IsPositive() {
		s.mustRegister(s.prestigeKey(), effects.Const{Value: s.prestigeBonus()})
	}
}

// HardReset returns the session to catalog defaults, keeping registered
// conditions and the scheduler's run state.
func (s *Session) HardReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hardReset()
	s.log.Warn("session hard reset")
}

func (s *Session) hardReset() {
	s.ledger.ResetAll()
	s.inv.reset()
	clear(s.skills)
	clear(s.achievements)
	clear(s.upgrades)
	s.prestige = prestigeState{points: numeric.Zero, claimed: numeric.Zero}
	s.manualGains = 0
	for _, m := range []string{ModuleSkills, ModuleAchievements, ModuleMarket, ModulePrestige} {
		s.effects.UnregisterModule(m, "")
	}
	s.scheduler.SetPlayTime(0)
	s.scheduler.SetTicks(0)
	s.production.MarkAllDirty()
}

// ApplyOffline credits time spent away, capped, as one accrual step per
// resource. It returns the amount gained per resource.
func (s *Session) ApplyOffline(elapsed time.Duration) OfflineReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := OfflineReport{Elapsed: elapsed, Gains: map[string]decimal.Decimal{}}
	if elapsed <= 0 {
		return report
	}
	applied := min(elapsed, s.offlineCap)
	report.Applied = applied

	s.production.ResolveDirty()
	before := map[string]decimal.Decimal{}
	for _, id := range s.ledger.IDs() {
		before[id] = s.ledger.Amount(id)
	}
	s.ledger.AccrueAll(numeric.Seconds(applied))
	for _, id := range s.ledger.IDs() {
		if d := s.ledger.Amount(id).Sub(before[id]); d.IsPositive() {
			report.Gains[id] = d
		}
	}
	s.scheduler.SetPlayTime(s.scheduler.PlayTime() + applied)
	s.log.Info("offline progress applied", "elapsed", elapsed.String(), "applied", applied.String(), "resources", len(report.Gains))
	return report
}

func (s *Session) mustRegister(key effects.Key, v effects.Valuer) {
	if err := s.effects.Register(key, v); err != nil {
		s.log.Error("re-register effect", "module", key.Module, "source", key.Source, "err", err)
	}
}
