package config

import (
	"fmt"
	"strings"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Hook   HookConfig
	Ledger LedgerConfig
	Auth   AuthConfig
	Events EventsConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type HookConfig struct {
	ProgramID      string `mapstructure:"program_id"`
	TokenProgramID string `mapstructure:"token_program_id"`
}

// Program returns the hook program id. Valid after Load.
func (h HookConfig) Program() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(h.ProgramID)
}

// TokenProgram returns the only program allowed to invoke Execute.
func (h HookConfig) TokenProgram() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(h.TokenProgramID)
}

type LedgerConfig struct {
	MaxTxRetries int `mapstructure:"max_tx_retries"`
}

type AuthConfig struct {
	MaxFutureWindowSec int64 `mapstructure:"max_future_window_sec"`
}

type EventsConfig struct {
	Topic   string `mapstructure:"topic"`
	Enabled bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("hook.token_program_id", solana.Token2022ProgramID.String())
	v.SetDefault("ledger.max_tx_retries", 16)
	v.SetDefault("auth.max_future_window_sec", 300)
	v.SetDefault("events.topic", "permit_hook.events")
	v.SetDefault("events.enabled", true)
	v.SetDefault("log.level", "info")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":                "PORT",
		"redis.addr":                 "REDIS_ADDR",
		"redis.password":             "REDIS_PASSWORD",
		"hook.program_id":            "HOOK_PROGRAM_ID",
		"hook.token_program_id":      "TOKEN_PROGRAM_ID",
		"ledger.max_tx_retries":      "LEDGER_MAX_TX_RETRIES",
		"auth.max_future_window_sec": "AUTH_MAX_FUTURE_WINDOW_SEC",
		"events.topic":               "EVENTS_TOPIC",
		"events.enabled":             "EVENTS_ENABLED",
		"log.level":                  "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Hook.ProgramID == "" {
		return fmt.Errorf("required config missing: HOOK_PROGRAM_ID")
	}
	for _, k := range []struct {
		val  string
		name string
	}{
		{c.Hook.ProgramID, "HOOK_PROGRAM_ID"},
		{c.Hook.TokenProgramID, "TOKEN_PROGRAM_ID"},
	} {
		if _, err := solana.PublicKeyFromBase58(k.val); err != nil {
			return fmt.Errorf("invalid %s: %w", k.name, err)
		}
	}
	if c.Hook.ProgramID == c.Hook.TokenProgramID {
		return fmt.Errorf("HOOK_PROGRAM_ID must differ from TOKEN_PROGRAM_ID")
	}
	if c.Ledger.MaxTxRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_TX_RETRIES must be >= 0")
	}
	if c.Auth.MaxFutureWindowSec <= 0 {
		return fmt.Errorf("AUTH_MAX_FUTURE_WINDOW_SEC must be > 0")
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC must not be empty")
	}
	return nil
}
