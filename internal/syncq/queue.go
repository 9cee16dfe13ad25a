// Package syncq keeps mutating idlectl commands that could not reach the
// server, so they can be replayed later with their original idempotency
// keys.
package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// Dir holds queue.json. Tests point it at a temp dir.
var Dir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".idleforge"), nil
}

func queuePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

func Push(cmd Command) error {
	if cmd.Method == "" || cmd.Path == "" || cmd.IdempotencyKey == "" {
		return errors.New("queued command needs method, path and idempotency key")
	}
	commands, err := Load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay sends each queued command through do in order. Commands that fail
// stay queued unless applied reports the failure as already applied.
func Replay(do func(Command) error, applied func(error) bool) (replayed int, remaining []Command, err error) {
	commands, err := Load()
	if err != nil {
		return 0, nil, err
	}
	remaining = make([]Command, 0, len(commands))
	for _, c := range commands {
		if err := do(c); err != nil && (applied == nil || !applied(err)) {
			remaining = append(remaining, c)
			continue
		}
		replayed++
	}
	if err := Save(remaining); err != nil {
		return replayed, remaining, err
	}
	return replayed, remaining, nil
}
