package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir        string `toml:"state_dir" yaml:"state_dir"`
	StoreDriver     string `toml:"store_driver" yaml:"store_driver"`
	StorePath       string `toml:"store_path" yaml:"store_path"`
	NetworkKind     string `toml:"network_kind" yaml:"network_kind"`
	Feature         string `toml:"feature" yaml:"feature"`
	Interface       string `toml:"interface" yaml:"interface"`
	EndpointURL     string `toml:"endpoint_url" yaml:"endpoint_url"`
	ProxyHost       string `toml:"proxy_host" yaml:"proxy_host"`
	ProxyPort       int    `toml:"proxy_port" yaml:"proxy_port"`
	UserAgent       string `toml:"user_agent" yaml:"user_agent"`
	RenewalInterval string `toml:"renewal_interval" yaml:"renewal_interval"`
	PollInterval    string `toml:"poll_interval" yaml:"poll_interval"`
	HTTPTimeout     string `toml:"http_timeout" yaml:"http_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	RescanSchedule  string `toml:"rescan_schedule" yaml:"rescan_schedule"`
	WakeLock        string `toml:"wake_lock" yaml:"wake_lock"`
	DeferDownloads  *bool  `toml:"defer_downloads" yaml:"defer_downloads"`
	SpoolDir        string `toml:"spool_dir" yaml:"spool_dir"`
	MetricsAddr     string `toml:"metrics_addr" yaml:"metrics_addr"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
	LogFormat       string `toml:"log_format" yaml:"log_format"`
}

// LoadFileConfig reads a config file. Files ending in .yaml or .yml are
// decoded as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("decode toml: %w", err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.mmsgate/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".mmsgate", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("store-driver", fc.StoreDriver, &cfg.StoreDriver)
	s.setString("store-path", fc.StorePath, &cfg.StorePath)
	s.setString("network", fc.NetworkKind, &cfg.NetworkKind)
	s.setString("feature", fc.Feature, &cfg.Feature)
	s.setString("interface", fc.Interface, &cfg.Interface)
	s.setString("endpoint-url", fc.EndpointURL, &cfg.EndpointURL)
	s.setString("proxy-host", fc.ProxyHost, &cfg.ProxyHost)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("rescan-schedule", fc.RescanSchedule, &cfg.RescanSchedule)
	s.setString("wake-lock", fc.WakeLock, &cfg.WakeLock)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	s.setInt("proxy-port", fc.ProxyPort, &cfg.ProxyPort)

	if err := s.setDuration("renewal-interval", fc.RenewalInterval, &cfg.RenewalInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBool("defer-downloads", fc.DeferDownloads, &cfg.DeferDownloads)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
