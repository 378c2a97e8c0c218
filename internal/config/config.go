// Package config loads settings from flags, SHOPBOOST_* environment
// variables and an optional config file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SHOPBOOST"

const (
	KeyDBDriver          = "db.driver"
	KeyDBDSN             = "db.dsn"
	KeyServerPort        = "server.port"
	KeyTokenFile         = "server.token_file"
	KeyBeaconRate        = "server.beacon_rate"
	KeyAutosaveDelay     = "autosave.delay"
	KeyGeminiAPIKey      = "gemini.api_key"
	KeyLayoutModel       = "gemini.layout_model"
	KeyRefineModel       = "gemini.refine_model"
	KeyGeminiRate        = "gemini.rate_per_minute"
	KeyShopifyTimeout    = "shopify.timeout"
	KeyReconcileSchedule = "reconcile.schedule"
	KeyLogLevel          = "log.level"
)

var defaults = map[string]any{
	KeyDBDriver:          "sqlite",
	KeyDBDSN:             "./shopboost.db",
	KeyServerPort:        8080,
	KeyTokenFile:         ".shopboost-token",
	KeyBeaconRate:        20,
	KeyAutosaveDelay:     5 * time.Second,
	KeyLayoutModel:       "gemini-3-pro-preview",
	KeyRefineModel:       "gemini-3-flash-preview",
	KeyGeminiRate:        10,
	KeyShopifyTimeout:    10 * time.Second,
	KeyReconcileSchedule: "@hourly",
	KeyLogLevel:          "info",
}

type Config struct {
	vp *viper.Viper
}

// New returns a Config holding only defaults and the environment.
func New() *Config {
	vp := viper.New()
	for k, v := range defaults {
		vp.SetDefault(k, v)
	}
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	return &Config{vp: vp}
}

// Load reads file on top of the defaults. The format follows the file
// extension (yaml, toml, json, ini). An empty file name skips reading.
func Load(file string) (*Config, error) {
	c := New()
	if file == "" {
		return c, nil
	}
	c.vp.SetConfigFile(file)
	if err := c.vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", file, err)
	}
	return c, nil
}

// BindFlag makes a command-line flag override key when the flag is set.
func (c *Config) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return c.vp.BindPFlag(key, flag)
}

func (c *Config) Set(key string, value any) {
	c.vp.Set(key, value)
}

func (c *Config) GetString(key string) string {
	return c.vp.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.vp.GetInt(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	return c.vp.GetDuration(key)
}

// Level parses log.level; unknown values fall back to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.GetString(KeyLogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger returns a JSON logger at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.Level()}))
}

// Settings returns every known key with its effective value. Secrets are
// masked.
func (c *Config) Settings() map[string]any {
	out := make(map[string]any, len(defaults)+1)
	for k := range defaults {
		out[k] = c.vp.Get(k)
	}
	out[KeyGeminiAPIKey] = mask(c.GetString(KeyGeminiAPIKey))
	return out
}

func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
