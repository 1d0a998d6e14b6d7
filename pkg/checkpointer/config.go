package checkpointer

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for the checkpointer.
type Config struct {
	Interval     time.Duration `env:"CHECKPOINT_INTERVAL"      envDefault:"30s"`   // Interval between checkpoint writes
	WriteTimeout time.Duration `env:"CHECKPOINT_WRITE_TIMEOUT" envDefault:"1s"`    // Timeout for each checkpoint write operation
	MaxRetries   int           `env:"CHECKPOINT_MAX_RETRIES"   envDefault:"3"`     // Maximum number of retry attempts for failed writes
	RetryBackoff time.Duration `env:"CHECKPOINT_RETRY_BACKOFF" envDefault:"300ms"` // Backoff duration between retry attempts
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}
}

// LoadConfig reads the checkpointer configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse checkpoint config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return errors.New("invalid checkpoint interval: must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("invalid checkpoint write timeout: must be greater than 0")
	}
	if c.MaxRetries < 0 {
		return errors.New("invalid checkpoint max retries: must not be negative")
	}
	return nil
}

// LevelDBConfig selects where the LevelDB checkpoint store keeps its files.
type LevelDBConfig struct {
	Path     string `env:"CHECKPOINT_LEVELDB_PATH"      envDefault:"./checkpoints"` // Directory of the LevelDB database
	InMemory bool   `env:"CHECKPOINT_LEVELDB_IN_MEMORY" envDefault:"false"`         // Keep checkpoints in memory only, for tests and dry runs
}

// LoadLevelDBConfig reads the LevelDB store configuration from the environment.
func LoadLevelDBConfig() (LevelDBConfig, error) {
	var cfg LevelDBConfig
	if err := env.Parse(&cfg); err != nil {
		return LevelDBConfig{}, fmt.Errorf("failed to parse leveldb config: %w", err)
	}
	if !cfg.InMemory && cfg.Path == "" {
		return LevelDBConfig{}, errors.New("invalid leveldb path: must be set unless in memory")
	}
	return cfg, nil
}
