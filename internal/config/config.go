package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	ScreenAgent = "agent"
	ScreenLocal = "local"

	EngineBitboard = "bitboard"
	EngineProcess  = "process"
)

type AppConfig struct {
	ScreenBackend      string        `yaml:"screen_backend"`
	ScreenAgentURL     string        `yaml:"screen_agent_url"`
	ScreenAgentToken   string        `yaml:"screen_agent_token"`
	ScreenAgentTimeout time.Duration `yaml:"screen_agent_timeout"`

	SettleDelay         time.Duration `yaml:"settle_delay"`
	ClickDelay          time.Duration `yaml:"click_delay"`
	Jitter              time.Duration `yaml:"jitter"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	OpponentTimeout     time.Duration `yaml:"opponent_timeout"`
	PlacementAttempts   int           `yaml:"placement_attempts"`
	CalibrationAttempts int           `yaml:"calibration_attempts"`
	ColorTolerance      int           `yaml:"color_tolerance"`
	StrongAfterPly      int           `yaml:"strong_after_ply"`
	WaitForOpponent     bool          `yaml:"wait_for_opponent"`
	RandomSeed          int64         `yaml:"random_seed"`

	EngineBackend string   `yaml:"engine_backend"`
	SolverPath    string   `yaml:"solver_path"`
	SolverArgs    []string `yaml:"solver_args"`
	HashMB        int      `yaml:"hash_mb"`
	BookPath      string   `yaml:"book_path"`

	RedisURL       string `yaml:"redis_url"`
	RecentGames    int    `yaml:"recent_games"`
	DatabaseURL    string `yaml:"database_url"`
	EventsAddr     string `yaml:"events_addr"`
	DiagnosticsDir string `yaml:"diagnostics_dir"`
	MessagesDir    string `yaml:"messages_dir"`
}

func Defaults() *AppConfig {
	return &AppConfig{
		ScreenBackend:       ScreenAgent,
		ScreenAgentTimeout:  2 * time.Second,
		SettleDelay:         120 * time.Millisecond,
		ClickDelay:          150 * time.Millisecond,
		PollInterval:        250 * time.Millisecond,
		PlacementAttempts:   8,
		CalibrationAttempts: 0,
		StrongAfterPly:      6,
		EngineBackend:       EngineBitboard,
		HashMB:              64,
		RecentGames:         100,
		DiagnosticsDir:      "diagnostics",
	}
}

// Load: 기본값 → C4_CONFIG_FILE(YAML) → 환경변수 순으로 덮어씀.
func Load() (*AppConfig, error) {
	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("C4_CONFIG_FILE")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("SCREEN_BACKEND", &c.ScreenBackend)
	str("SCREEN_AGENT_URL", &c.ScreenAgentURL)
	str("SCREEN_AGENT_TOKEN", &c.ScreenAgentToken)
	str("ENGINE_BACKEND", &c.EngineBackend)
	str("SOLVER_PATH", &c.SolverPath)
	str("BOOK_PATH", &c.BookPath)
	str("REDIS_URL", &c.RedisURL)
	str("DATABASE_URL", &c.DatabaseURL)
	str("EVENTS_ADDR", &c.EventsAddr)
	str("DIAGNOSTICS_DIR", &c.DiagnosticsDir)
	str("MESSAGES_DIR", &c.MessagesDir)

	if v := strings.TrimSpace(os.Getenv("SOLVER_ARGS")); v != "" {
		c.SolverArgs = strings.Fields(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SCREEN_AGENT_TIMEOUT", &c.ScreenAgentTimeout},
		{"SETTLE_DELAY", &c.SettleDelay},
		{"CLICK_DELAY", &c.ClickDelay},
		{"CLICK_JITTER", &c.Jitter},
		{"POLL_INTERVAL", &c.PollInterval},
		{"OPPONENT_TIMEOUT", &c.OpponentTimeout},
	}
	for _, d := range durations {
		if v := strings.TrimSpace(os.Getenv(d.key)); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"PLACEMENT_ATTEMPTS", &c.PlacementAttempts},
		{"CALIBRATION_ATTEMPTS", &c.CalibrationAttempts},
		{"COLOR_TOLERANCE", &c.ColorTolerance},
		{"STRONG_AFTER_PLY", &c.StrongAfterPly},
		{"HASH_MB", &c.HashMB},
		{"RECENT_GAMES", &c.RecentGames},
	}
	for _, n := range ints {
		if v := strings.TrimSpace(os.Getenv(n.key)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}

	if v := strings.TrimSpace(os.Getenv("WAIT_FOR_OPPONENT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WAIT_FOR_OPPONENT: %w", err)
		}
		c.WaitForOpponent = b
	}
	if v := strings.TrimSpace(os.Getenv("RANDOM_SEED")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("RANDOM_SEED: %w", err)
		}
		c.RandomSeed = n
	}
	return nil
}

func (c *AppConfig) Validate() error {
	c.ScreenBackend = strings.ToLower(strings.TrimSpace(c.ScreenBackend))
	c.EngineBackend = strings.ToLower(strings.TrimSpace(c.EngineBackend))

	switch c.ScreenBackend {
	case ScreenAgent, ScreenLocal:
	default:
		return fmt.Errorf("SCREEN_BACKEND must be %q or %q, got %q", ScreenAgent, ScreenLocal, c.ScreenBackend)
	}
	// local 백엔드도 포인터 제어는 에이전트를 통함
	if c.ScreenAgentURL == "" {
		return errors.New("SCREEN_AGENT_URL is required")
	}
	switch c.EngineBackend {
	case EngineBitboard:
	case EngineProcess:
		if c.SolverPath == "" {
			return errors.New("SOLVER_PATH is required for the process engine")
		}
	default:
		return fmt.Errorf("ENGINE_BACKEND must be %q or %q, got %q", EngineBitboard, EngineProcess, c.EngineBackend)
	}
	if c.ColorTolerance < 0 || c.ColorTolerance > 255 {
		return fmt.Errorf("COLOR_TOLERANCE out of range: %d", c.ColorTolerance)
	}
	if c.OpponentTimeout < 0 {
		return errors.New("OPPONENT_TIMEOUT must not be negative")
	}
	if c.StrongAfterPly < 0 || c.HashMB <= 0 {
		return errors.New("STRONG_AFTER_PLY and HASH_MB must be positive")
	}
	return nil
}
