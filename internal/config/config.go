package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config describes all runtime settings for the server. It is loaded once
// in main, validated and passed down explicitly.
type Config struct {
	Env string // dev|stage|prod

	Log struct {
		Format string // text|json
		Level  string // debug|info|warn|error
	}

	HTTP struct {
		Addr              string
		ReadHeaderTimeout time.Duration
		IdleTimeout       time.Duration
		ShutdownTimeout   time.Duration
		AllowedOrigins    []string
	}

	Redis struct {
		Addr    string // empty => snapshot mirror disabled
		DB      int
		Channel string
	}

	Game Game
}

// Game holds the competition parameters. It can be overridden by the
// `game:` section of CONFIG_FILE.
type Game struct {
	Handoff        time.Duration `yaml:"handoff"`
	InspectRed     time.Duration `yaml:"inspect_red"`
	InspectYellow  time.Duration `yaml:"inspect_yellow"`
	InspectGreen   time.Duration `yaml:"inspect_green"`
	Attempts       int           `yaml:"attempts"`
	ScrambleLength int           `yaml:"scramble_length"`
	TickInterval   time.Duration `yaml:"tick_interval"`
}

type fileConfig struct {
	Game *Game `yaml:"game"`
}

func LoadFromEnv() (Config, error) {
	var c Config

	c.Env = envString("APP_ENV", "dev")
	c.Log.Format = envString("LOG_FORMAT", "text")
	c.Log.Level = envString("LOG_LEVEL", "info")

	port := envString("PORT", "8080")
	c.HTTP.Addr = envString("HTTP_ADDR", ":"+port)
	c.HTTP.ReadHeaderTimeout = envDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	c.HTTP.IdleTimeout = envDuration("HTTP_IDLE_TIMEOUT", 60*time.Second)
	c.HTTP.ShutdownTimeout = envDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second)
	c.HTTP.AllowedOrigins = envList("CORS_ALLOWED_ORIGINS", []string{"*"})

	c.Redis.Addr = envString("REDIS_ADDR", "")
	c.Redis.DB = envInt("REDIS_DB", 0)
	c.Redis.Channel = envString("REDIS_CHANNEL", "cubomatch:state")

	c.Game.Handoff = envDuration("HANDOFF_DURATION", 5*time.Second)
	c.Game.InspectRed = envDuration("INSPECT_RED", 8*time.Second)
	c.Game.InspectYellow = envDuration("INSPECT_YELLOW", 4*time.Second)
	c.Game.InspectGreen = envDuration("INSPECT_GREEN", 3*time.Second)
	c.Game.Attempts = envInt("ATTEMPTS", 5)
	c.Game.ScrambleLength = envInt("SCRAMBLE_LENGTH", 20)
	c.Game.TickInterval = envDuration("TICK_INTERVAL", 120*time.Millisecond)

	if path := envString("CONFIG_FILE", ""); path != "" {
		if err := c.overlayFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// overlayFile replaces game settings with the non-zero values from a YAML
// file.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.Game == nil {
		return nil
	}

	g := fc.Game
	if g.Handoff != 0 {
		c.Game.Handoff = g.Handoff
	}
	if g.InspectRed != 0 {
		c.Game.InspectRed = g.InspectRed
	}
	if g.InspectYellow != 0 {
		c.Game.InspectYellow = g.InspectYellow
	}
	if g.InspectGreen != 0 {
		c.Game.InspectGreen = g.InspectGreen
	}
	if g.Attempts != 0 {
		c.Game.Attempts = g.Attempts
	}
	if g.ScrambleLength != 0 {
		c.Game.ScrambleLength = g.ScrambleLength
	}
	if g.TickInterval != 0 {
		c.Game.TickInterval = g.TickInterval
	}
	return nil
}

func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("HTTP addr is empty")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unsupported LOG_FORMAT=%q (want text|json)", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported LOG_LEVEL=%q", c.Log.Level)
	}
	if c.Game.Handoff <= 0 || c.Game.InspectRed <= 0 || c.Game.InspectYellow <= 0 || c.Game.InspectGreen <= 0 {
		return errors.New("stage durations must be positive")
	}
	if c.Game.Attempts < 1 {
		return fmt.Errorf("ATTEMPTS=%d, want >= 1", c.Game.Attempts)
	}
	if c.Game.ScrambleLength < 1 {
		return fmt.Errorf("SCRAMBLE_LENGTH=%d, want >= 1", c.Game.ScrambleLength)
	}
	if c.Game.TickInterval < 10*time.Millisecond || c.Game.TickInterval > time.Second {
		return fmt.Errorf("TICK_INTERVAL=%s out of range 10ms..1s", c.Game.TickInterval)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
