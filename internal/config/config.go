package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type ServerConfig struct {
	Addr          string
	DatabaseURL   string
	DBMaxConns    int32
	SaveSchema    string
	SaveDir       string
	Slot          string
	CatalogPath   string
	Tick          time.Duration
	PumpEvery     time.Duration
	AutosaveEvery time.Duration
	OfflineCap    time.Duration
	AutoStart     bool
}

// WorkerConfig drives idle-sim, which advances a stored slot while no
// server holds it.
type WorkerConfig struct {
	ServerConfig
	Every   time.Duration
	RunFor  time.Duration
	RunOnce bool
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadServerFromEnv() (ServerConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("IDLE_API_ADDR", ":8080")
	}

	cfg := ServerConfig{
		Addr:          addr,
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:    int32(envIntDefault("IDLE_DB_MAX_CONNS", 4)),
		SaveSchema:    envDefault("IDLE_SAVE_SCHEMA", "idle"),
		SaveDir:       envDefault("IDLE_SAVE_DIR", defaultSaveDir()),
		Slot:          envDefault("IDLE_SAVE_SLOT", "default"),
		CatalogPath:   strings.TrimSpace(os.Getenv("IDLE_CATALOG")),
		Tick:          envDurationDefault("IDLE_TICK", 100*time.Millisecond),
		PumpEvery:     envDurationDefault("IDLE_PUMP_EVERY", 50*time.Millisecond),
		AutosaveEvery: envDurationDefault("IDLE_AUTOSAVE_EVERY", 30*time.Second),
		OfflineCap:    envDurationDefault("IDLE_OFFLINE_CAP", 24*time.Hour),
		AutoStart:     envBoolDefault("IDLE_AUTOSTART", true),
	}
	if cfg.Tick <= 0 {
		return cfg, fmt.Errorf("IDLE_TICK must be > 0")
	}
	if cfg.PumpEvery <= 0 {
		return cfg, fmt.Errorf("IDLE_PUMP_EVERY must be > 0")
	}
	if cfg.OfflineCap < 0 {
		return cfg, fmt.Errorf("IDLE_OFFLINE_CAP must be >= 0")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	base, err := LoadServerFromEnv()
	cfg := WorkerConfig{
		ServerConfig: base,
		Every:        envDurationDefault("IDLE_SIM_EVERY", time.Minute),
		RunFor:       envDurationDefault("IDLE_SIM_RUN_FOR", 0),
		RunOnce:      envBoolDefault("IDLE_SIM_RUN_ONCE", false),
	}
	if err != nil {
		return cfg, err
	}
	if cfg.Every <= 0 {
		return cfg, fmt.Errorf("IDLE_SIM_EVERY must be > 0")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("IDLE_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".idleforge"
	}
	return filepath.Join(home, ".idleforge")
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
