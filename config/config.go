package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"rollcall-picker/selection"
	"rollcall-picker/session"
)

// Config holds the server settings. Every field can be set from the
// environment or a .env file.
type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"8388608"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"8"`
	SeedData      bool   `env:"SEED_DATA" envDefault:"true"`

	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"200ms"`
	TickCount    int           `env:"TICK_COUNT" envDefault:"20"`
	WinnerDelay  time.Duration `env:"WINNER_DELAY" envDefault:"300ms"`
	EventBuffer  int           `env:"EVENT_BUFFER" envDefault:"64"`

	PhotoSize    int `env:"PHOTO_SIZE" envDefault:"150"`
	PhotoQuality int `env:"PHOTO_QUALITY" envDefault:"80"`
}

const envPrefix = "ROLLCALL_"

// Load reads an optional .env file, then the process environment
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
		log.Println("No .env file found, using environment")
	}
	return FromEnv()
}

// FromEnv parses the process environment without touching .env files
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP address cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis address cannot be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis DB must not be negative")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.TickCount <= 0 {
		return fmt.Errorf("tick count must be positive")
	}
	if c.WinnerDelay < 0 {
		return fmt.Errorf("winner delay must not be negative")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive")
	}
	if c.PhotoSize <= 0 {
		return fmt.Errorf("photo size must be positive")
	}
	if c.PhotoQuality < 1 || c.PhotoQuality > 100 {
		return fmt.Errorf("photo quality must be between 1 and 100")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// Selection returns the engine timing
func (c *Config) Selection() selection.Config {
	return selection.Config{
		TickInterval: c.TickInterval,
		TickCount:    c.TickCount,
		WinnerDelay:  c.WinnerDelay,
	}
}

// Session returns the per-classroom session settings
func (c *Config) Session() session.Config {
	return session.Config{
		Selection:   c.Selection(),
		EventBuffer: c.EventBuffer,
	}
}
