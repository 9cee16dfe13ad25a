package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"idleforge/internal/save"
)

// SaveTo writes the session to slot and adopts the new revision.
func (s *Session) SaveTo(ctx context.Context, store save.Store, slot string) (string, error) {
	st := s.Snapshot()
	rev, err := store.Save(ctx, slot, st)
	if err != nil {
		return "", fmt.Errorf("save slot %s: %w", slot, err)
	}
	s.SetRevision(rev)
	s.log.Debug("saved", "slot", slot, "revision", rev)
	return rev, nil
}

// LoadFrom restores slot and credits the time since it was saved. A missing
// slot starts a fresh game; a corrupt one is logged and leaves the session at
// defaults. Only store failures are returned.
func (s *Session) LoadFrom(ctx context.Context, store save.Store, slot string, now time.Time) (OfflineReport, error) {
	st, err := store.Load(ctx, slot)
	switch {
	case errors.Is(err, save.ErrNotFound):
		s.log.Info("no save found, starting fresh", "slot", slot)
		return OfflineReport{}, nil
	case errors.Is(err, save.ErrCorrupt):
		s.HardReset()
		s.log.Error("save unreadable, starting fresh", "slot", slot, "err", err)
		return OfflineReport{}, nil
	case err != nil:
		return OfflineReport{}, fmt.Errorf("load slot %s: %w", slot, err)
	}

	if err := s.Restore(st); err != nil {
		// Keep the stored revision so the next save replaces the bad row.
		s.SetRevision(st.Revision)
		return OfflineReport{}, nil
	}
	if st.SavedAt.IsZero() {
		return OfflineReport{}, nil
	}
	return s.ApplyOffline(now.Sub(st.SavedAt)), nil
}

// Autosave saves slot every period until ctx is done. Failures are logged
// and retried on the next period.
func (s *Session) Autosave(ctx context.Context, store save.Store, slot string, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SaveTo(ctx, store, slot); err != nil {
				s.log.Error("autosave failed", "slot", slot, "err", err)
			}
		}
	}
}
