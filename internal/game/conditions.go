package game

import "idleforge/internal/numeric"

// DefaultConditions are the unlock rules for the bundled catalog's
// achievements. Hosts may register their own instead.
func DefaultConditions() map[string]Condition {
	return map[string]Condition{
		"first_miner": func(p Progress) bool { return p.Owned("miner") >= 1 },
		"gold_hoard": func(p Progress) bool {
			return p.TotalEarned("gold").GreaterThanOrEqual(numeric.FromInt(1_000_000))
		},
		"click_frenzy": func(p Progress) bool { return p.ManualGains() >= 100 },
	}
}

// RegisterConditions attaches every condition whose achievement exists in
// the session's catalog and returns how many were attached.
func (s *Session) RegisterConditions(conds map[string]Condition) int {
	n := 0
	for _, a := range s.catalog.Achievements {
		fn, ok := conds[a.ID]
		if !ok {
			continue
		}
		if err := s.RegisterAchievementCondition(a.ID, fn); err != nil {
			s.log.Warn("skip achievement condition", "achievement", a.ID, "err", err)
			continue
		}
		n++
	}
	return n
}
