package save

import (
	"context"
	"errors"
	"testing"
	"time"

	"idleforge/internal/ledger"
)

func sampleState() State {
	return State{
		Resources: map[string]ledger.Snapshot{
			"gold": {
				Amount:            "123456789012345678901234567890.5",
				TotalEarned:       "999999999999999999999999999999",
				ProductionSources: map[string]string{"producer:miners/miner": "2.5"},
				Unlocked:          true,
				Visible:           true,
			},
		},
		Producers:    map[string]int64{"miner": 5},
		Skills:       map[string]int64{"deep_veins": 2},
		Achievements: []string{"first_miner"},
		Prestige:     Prestige{Count: 1, Points: "3", ClaimedPoints: "3"},
		PlayTimeMs:   42_000,
	}
}

func TestValidateSlot(t *testing.T) {
	for _, ok := range []string{"default", "slot_2", "A-b"} {
		if err := ValidateSlot(ok); err != nil {
			t.Fatalf("expected %q valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "../etc", "a b", "x/y"} {
		if err := ValidateSlot(bad); !errors.Is(err, ErrInvalidSlot) {
			t.Fatalf("expected %q invalid", bad)
		}
	}
}

func TestUnmarshalRejectsCorrupt(t *testing.T) {
	for _, raw := range []string{"", "{", `{"version": 99, "resources": {}}`, `{"version": 1}`} {
		if _, err := Unmarshal([]byte(raw)); !errors.Is(err, ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt for %q, got %v", raw, err)
		}
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Load(ctx, "default"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st := sampleState()
	st.SavedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rev, err := store.Save(ctx, "default", st)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "default")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Revision != rev || got.Version != Version {
		t.Fatalf("unexpected header: rev=%s version=%d", got.Revision, got.Version)
	}
	if got.Resources["gold"].Amount != st.Resources["gold"].Amount {
		t.Fatalf("amount mismatch: %s", got.Resources["gold"].Amount)
	}
	if got.Producers["miner"] != 5 || got.Skills["deep_veins"] != 2 || got.PlayTimeMs != 42_000 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if !got.SavedAt.Equal(st.SavedAt) {
		t.Fatalf("saved at got %s", got.SavedAt)
	}

	slots, err := store.List(ctx)
	if err != nil || len(slots) != 1 || slots[0].Slot != "default" || slots[0].Revision != rev {
		t.Fatalf("list got %+v err=%v", slots, err)
	}
}

func TestFileStoreRevisionCheck(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir())
	first, err := store.Save(ctx, "s", sampleState())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	st := sampleState()
	st.Revision = first
	if _, err := store.Save(ctx, "s", st); err != nil {
		t.Fatalf("save with matching revision: %v", err)
	}
	st.Revision = first
	if _, err := store.Save(ctx, "s", st); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	st.Revision = ""
	if _, err := store.Save(ctx, "s", st); err != nil {
		t.Fatalf("forced save: %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := NewFileStore(t.TempDir())
	_, _ = store.Save(ctx, "gone", sampleState())
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
