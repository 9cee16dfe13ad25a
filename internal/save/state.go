// Package save defines the persisted form of a game session and the stores
// that keep it.
package save

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"idleforge/internal/ledger"
)

const Version = 1

var (
	ErrNotFound    = errors.New("save slot not found")
	ErrCorrupt     = errors.New("save data corrupt")
	ErrConflict    = errors.New("save slot was modified concurrently")
	ErrInvalidSlot = errors.New("slot must be 1-64 letters, digits, '-' or '_'")
)

var slotRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

func ValidateSlot(slot string) error {
	if !slotRE.MatchString(strings.TrimSpace(slot)) {
		return ErrInvalidSlot
	}
	return nil
}

type State struct {
	Version      int                        `json:"version"`
	Revision     string                     `json:"revision,omitempty"`
	SavedAt      time.Time                  `json:"saved_at"`
	Resources    map[string]ledger.Snapshot `json:"resources"`
	Producers    map[string]int64           `json:"producers"`
	Skills       map[string]int64           `json:"skills"`
	Achievements []string                   `json:"achievements"`
	Upgrades     []string                   `json:"upgrades"`
	Prestige     Prestige                   `json:"prestige"`
	PlayTimeMs   int64                      `json:"play_time_ms"`
	Ticks        uint64                     `json:"ticks"`
	ManualGains  int64                      `json:"manual_gains,omitempty"`
}

type Prestige struct {
	Count         int64  `json:"count"`
	Points        string `json:"points"`
	ClaimedPoints string `json:"claimed_points"`
}

type SlotInfo struct {
	Slot     string    `json:"slot"`
	Revision string    `json:"revision"`
	SavedAt  time.Time `json:"saved_at"`
}

func Marshal(st State) ([]byte, error) {
	st.Version = Version
	return json.MarshalIndent(st, "", "  ")
}

// Unmarshal decodes and sanity-checks a snapshot. Decimal strings are left
// for the session to revive.
func Unmarshal(raw []byte) (State, error) {
	var st State
	if len(raw) == 0 {
		return st, fmt.Errorf("%w: empty document", ErrCorrupt)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if st.Version != Version {
		return st, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, st.Version)
	}
	if st.Resources == nil {
		return st, fmt.Errorf("%w: no resources", ErrCorrupt)
	}
	return st, nil
}
