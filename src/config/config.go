// Package config provides configuration management for the bb CLI.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"bbpipe/src/bitbucket"
)

// Keys used in viper. Cobra flags with the same names are bound to them.
const (
	KeyWorkspace       = "workspace"
	KeyRepo            = "repo"
	KeyUser            = "user"
	KeyPassword        = "password"
	KeyProfile         = "profile"
	KeyAPIURL          = "api-url"
	KeyRedpandaBrokers = "redpanda-brokers"
	KeyPostgresDSN     = "postgres-dsn"
	KeySleepTime       = "sleep-time"
	KeyWatchdogMax     = "watchdog-max"
)

// envBindings maps each key to its environment variable.
var envBindings = map[string]string{
	KeyWorkspace:       "BB_WORKSPACE",
	KeyRepo:            "BB_REPO",
	KeyUser:            "BB_USER",
	KeyPassword:        "BB_PASSWORD",
	KeyProfile:         "BB_PROFILE",
	KeyAPIURL:          "BB_API_URL",
	KeyRedpandaBrokers: "REDPANDA_BROKERS",
	KeyPostgresDSN:     "POSTGRES_DSN",
	KeySleepTime:       "BB_SLEEP_TIME",
	KeyWatchdogMax:     "BB_WATCHDOG_MAX",
}

// DefaultProfile is the keychain profile used when BB_PROFILE is unset.
const DefaultProfile = "default"

// Config holds the application configuration.
type Config struct {
	Workspace string
	Repo      string
	Username  string
	Password  string
	// Profile selects the keychain entries used when Username or Password
	// are not given.
	Profile string
	// APIBaseURL overrides the Bitbucket API root.
	APIBaseURL string

	// RedpandaBrokers enables publishing pipeline events when non-empty.
	RedpandaBrokers []string
	// PostgresDSN enables the persistent wait history when non-empty.
	PostgresDSN string

	SleepTime   time.Duration
	WatchdogMax int
}

// NewViper returns a viper instance with every key bound to its environment
// variable.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, env := range envBindings {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(key, env)
	}
	v.SetDefault(KeyProfile, DefaultProfile)
	v.SetDefault(KeyAPIURL, bitbucket.APIBaseURL)
	return v
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	return Load(NewViper())
}

// Load reads the configuration from v. Flags bound into v take precedence
// over the environment.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Workspace:   strings.TrimSpace(v.GetString(KeyWorkspace)),
		Repo:        strings.TrimSpace(v.GetString(KeyRepo)),
		Username:    v.GetString(KeyUser),
		Password:    v.GetString(KeyPassword),
		Profile:     v.GetString(KeyProfile),
		APIBaseURL:  v.GetString(KeyAPIURL),
		PostgresDSN: v.GetString(KeyPostgresDSN),
		SleepTime:   bitbucket.DefaultSleepTime,
		WatchdogMax: bitbucket.DefaultWatchdogMax,
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}

	for _, b := range strings.Split(v.GetString(KeyRedpandaBrokers), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.RedpandaBrokers = append(cfg.RedpandaBrokers, b)
		}
	}

	if raw := strings.TrimSpace(v.GetString(KeySleepTime)); raw != "" {
		d, err := ParseSleepTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", envBindings[KeySleepTime], err)
		}
		cfg.SleepTime = d
	}

	if raw := strings.TrimSpace(v.GetString(KeyWatchdogMax)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: %q must be a positive integer", envBindings[KeyWatchdogMax], raw)
		}
		cfg.WatchdogMax = n
	}

	return cfg, nil
}

// ParseSleepTime accepts a Go duration ("30s") or a bare number of seconds.
func ParseSleepTime(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%q must not be negative", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("%q must not be negative", raw)
	}
	return d, nil
}

// Validate checks that everything needed to talk to Bitbucket is present.
func (c *Config) Validate() error {
	missing := []struct {
		value string
		key   string
	}{
		{c.Workspace, KeyWorkspace},
		{c.Repo, KeyRepo},
		{c.Username, KeyUser},
		{c.Password, KeyPassword},
	}
	for _, m := range missing {
		if m.value == "" {
			return fmt.Errorf("--%s or %s is required", m.key, envBindings[m.key])
		}
	}
	return nil
}

// EnvVar returns the environment variable bound to key.
func EnvVar(key string) string {
	return envBindings[key]
}
