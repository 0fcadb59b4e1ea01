// Package config loads the bughouse server's configuration: one merged
// listener plus persistence, session and match tuning knobs.
//
// Viper-backed: env prefix, file discovery with defaults fallback when no
// config file is present.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Session     SessionConfig     `mapstructure:"session"`
	Match       MatchConfig       `mapstructure:"match"`
	Development DevelopmentConfig `mapstructure:"development"`
}

// ServerConfig is the single TCP listener serving both /ws and the /dyn
// HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PersistenceConfig struct {
	// DSN is a Postgres connection string for the GORM store. Empty means
	// run against the in-memory fake (local dev, tests).
	DSN string `mapstructure:"dsn"`
	// RedisAddr backs the match-code index and the session replay-buffer
	// overflow marker.
	RedisAddr string `mapstructure:"redis_addr"`
}

type SessionConfig struct {
	// ReplayWindow is how long a disconnected session's outgoing buffer is
	// retained for hot-reconnect replay before a StateSnapshot is required
	// instead.
	ReplayWindow time.Duration `mapstructure:"replay_window"`
	// PongTimeout is how long the server waits for a Pong before marking a
	// session irresponsive; the server does not act on this
	// itself, only reports it.
	PongTimeout time.Duration `mapstructure:"pong_timeout"`
}

type MatchConfig struct {
	// ReapAfterIdle is how long a match with zero connected participants
	// survives before being reaped, while no game is in progress (Lobby or
	// PostGame phase).
	ReapAfterIdle time.Duration `mapstructure:"reap_after_idle"`
}

type DevelopmentConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Enable environment variables
	viper.SetEnvPrefix("BUGHOUSE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 14361)
	viper.SetDefault("persistence.dsn", "")
	viper.SetDefault("persistence.redis_addr", "localhost:6379")
	viper.SetDefault("session.replay_window", 5*time.Minute)
	viper.SetDefault("session.pong_timeout", 20*time.Second)
	viper.SetDefault("match.reap_after_idle", 2*time.Minute)
	viper.SetDefault("development.debug", false)
	viper.SetDefault("development.log_level", "info")

	// Read config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return loadDefaults(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 14361,
		},
		Persistence: PersistenceConfig{
			RedisAddr: "localhost:6379",
		},
		Session: SessionConfig{
			ReplayWindow: 5 * time.Minute,
			PongTimeout:  20 * time.Second,
		},
		Match: MatchConfig{
			ReapAfterIdle: 2 * time.Minute,
		},
		Development: DevelopmentConfig{
			Debug:    false,
			LogLevel: "info",
		},
	}
}
