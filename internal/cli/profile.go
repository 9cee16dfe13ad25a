package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Profile holds idlectl settings that outlive one invocation.
type Profile struct {
	APIBaseURL string `json:"api_base_url"`
}

// ProfileDir is overridable for tests.
var ProfileDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".idleforge"), nil
}

func profilePath() (string, error) {
	dir, err := ProfileDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "idlectl.json"), nil
}

func SaveProfile(p Profile) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

// LoadProfile returns an empty profile when none was saved.
func LoadProfile() (Profile, error) {
	path, err := profilePath()
	if err != nil {
		return Profile{}, err
	}
	body, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, nil
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("read %s: %w", path, err)
	}
	p.APIBaseURL = strings.TrimRight(strings.TrimSpace(p.APIBaseURL), "/")
	return p, nil
}

func ClearProfile() error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
