package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore keeps one JSON document per slot in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".idleforge")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(slot string) string {
	return filepath.Join(f.dir, slot+".json")
}

func (f *FileStore) Load(_ context.Context, slot string) (State, error) {
	if err := ValidateSlot(slot); err != nil {
		return State{}, err
	}
	raw, err := os.ReadFile(f.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, ErrNotFound
		}
		return State{}, err
	}
	return Unmarshal(raw)
}

// Save writes st under a fresh revision. A non-empty st.Revision must match
// the stored one.
func (f *FileStore) Save(ctx context.Context, slot string, st State) (string, error) {
	if err := ValidateSlot(slot); err != nil {
		return "", err
	}
	if st.Revision != "" {
		current, err := f.Load(ctx, slot)
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
		case err != nil:
			return "", err
		case current.Revision != st.Revision:
			return "", ErrConflict
		}
	}
	st.Revision = uuid.NewString()
	if st.SavedAt.IsZero() {
		st.SavedAt = time.Now().UTC()
	}
	raw, err := Marshal(st)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(f.dir, slot+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), f.path(slot)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("replace save: %w", err)
	}
	return st.Revision, nil
}

func (f *FileStore) List(_ context.Context) ([]SlotInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var out []SlotInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(f.dir, name))
		if err != nil {
			continue
		}
		var head struct {
			Revision string    `json:"revision"`
			SavedAt  time.Time `json:"saved_at"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		out = append(out, SlotInfo{Slot: strings.TrimSuffix(name, ".json"), Revision: head.Revision, SavedAt: head.SavedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (f *FileStore) Delete(_ context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if err := os.Remove(f.path(slot)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
