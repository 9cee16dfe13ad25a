package syncq

import (
	"errors"
	"testing"
)

func useTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prev := Dir
	Dir = func() (string, error) { return dir, nil }
	t.Cleanup(func() { Dir = prev })
}

func TestPushLoadDedupes(t *testing.T) {
	useTempDir(t)

	got, err := Load()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty queue, got %d", len(got))
	}

	cmd := Command{Method: "POST", Path: "/v1/skills/deep_veins/level", IdempotencyKey: "k1"}
	if err := Push(cmd); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := Push(cmd); err != nil {
		t.Fatalf("push again: %v", err)
	}
	if err := Push(Command{Method: "POST", Path: "/v1/producers/miner/buy", Body: map[string]any{"quantity": 2}, IdempotencyKey: "k2"}); err != nil {
		t.Fatalf("push second: %v", err)
	}

	got, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(got))
	}
	if got[0].QueuedAt.IsZero() {
		t.Fatalf("queued_at not stamped")
	}
	if got[1].Body["quantity"] != float64(2) {
		t.Fatalf("body not kept: %#v", got[1].Body)
	}
}

func TestPushRejectsIncomplete(t *testing.T) {
	useTempDir(t)
	if err := Push(Command{Method: "POST", Path: "/v1/prestige"}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestReplay(t *testing.T) {
	useTempDir(t)
	errOffline := errors.New("offline")
	errDup := errors.New("duplicate")
	for _, key := range []string{"ok", "dup", "down"} {
		if err := Push(Command{Method: "POST", Path: "/v1/prestige", IdempotencyKey: key}); err != nil {
			t.Fatalf("push %s: %v", key, err)
		}
	}

	replayed, remaining, err := Replay(func(c Command) error {
		switch c.IdempotencyKey {
		case "dup":
			return errDup
		case "down":
			return errOffline
		}
		return nil
	}, func(err error) bool { return errors.Is(err, errDup) })
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != 2 || len(remaining) != 1 || remaining[0].IdempotencyKey != "down" {
		t.Fatalf("unexpected replay result: %d %#v", replayed, remaining)
	}

	left, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("expected 1 queued command, got %d", len(left))
	}

	if _, _, err := Replay(func(Command) error { return nil }, nil); err != nil {
		t.Fatalf("replay rest: %v", err)
	}
	left, _ = Load()
	if len(left) != 0 {
		t.Fatalf("queue should be empty, got %d", len(left))
	}
}
