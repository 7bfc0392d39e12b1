package cliconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/mmsgate/internal/domain"
)

// Store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Wake lock implementations.
const (
	WakeLockMemory = "memory"
	WakeLockLogind = "logind"
	WakeLockNone   = "none"
)

// Config holds CLI configuration for mmsgate.
type Config struct {
	StateDir    string
	StoreDriver string
	StorePath   string

	NetworkKind string
	Feature     string
	Interface   string

	EndpointURL string
	ProxyHost   string
	ProxyPort   int
	UserAgent   string

	RenewalInterval time.Duration
	PollInterval    time.Duration
	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration
	RescanSchedule  string

	WakeLock       string
	DeferDownloads bool
	SpoolDir       string
	MetricsAddr    string

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoreDriver:     StoreSQLite,
		NetworkKind:     "mobile",
		Feature:         "enableMMS",
		RenewalInterval: 30 * time.Second,
		PollInterval:    time.Second,
		HTTPTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RescanSchedule:  "@every 15m",
		WakeLock:        WakeLockMemory,
		DeferDownloads:  true,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return invalid("state-dir is required")
		}
		c.StateDir = filepath.Join(h, ".mmsgate", "state")
	}

	switch c.StoreDriver {
	case StoreFile:
		if c.StorePath == "" {
			c.StorePath = c.StateDir
		}
	case StoreSQLite:
		if c.StorePath == "" {
			c.StorePath = filepath.Join(c.StateDir, "mmsgate.db")
		}
	default:
		return invalid("unknown store driver %q", c.StoreDriver)
	}

	if c.SpoolDir == "" {
		c.SpoolDir = filepath.Join(c.StateDir, "spool")
	}

	switch c.NetworkKind {
	case "mobile", "wifi":
	default:
		return invalid("unknown network kind %q", c.NetworkKind)
	}
	if c.Feature == "" {
		return invalid("feature is required")
	}
	if c.Interface == "" {
		return invalid("interface is required")
	}

	if c.EndpointURL == "" {
		return invalid("endpoint-url is required")
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("endpoint-url must be an absolute http(s) URL: %q", c.EndpointURL)
	}
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return invalid("proxy-port out of range: %d", c.ProxyPort)
	}

	if c.RenewalInterval <= 0 {
		return invalid("renewal interval must be positive")
	}
	if c.PollInterval <= 0 {
		return invalid("poll interval must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return invalid("http timeout must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("shutdown timeout must be positive")
	}

	switch c.WakeLock {
	case WakeLockMemory, WakeLockLogind, WakeLockNone:
	default:
		return invalid("unknown wake lock %q", c.WakeLock)
	}

	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return invalid("unknown log format %q", c.LogFormat)
	}

	return nil
}

// Settings returns the configured relay connection settings.
func (c Config) Settings() domain.ConnectionSettings {
	return domain.ConnectionSettings{
		EndpointURL: c.EndpointURL,
		ProxyHost:   c.ProxyHost,
		ProxyPort:   c.ProxyPort,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
