package cliconfig

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/mmsgate/internal/domain"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.StateDir = "/var/lib/mmsgate"
	cfg.Interface = "wwan0"
	cfg.EndpointURL = "http://mmsc.example/mms"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RenewalInterval != 30*time.Second {
		t.Errorf("RenewalInterval = %v, want 30s", cfg.RenewalInterval)
	}
	if cfg.Feature != "enableMMS" {
		t.Errorf("Feature = %v, want enableMMS", cfg.Feature)
	}
	if !cfg.DeferDownloads {
		t.Error("DeferDownloads should default to true")
	}
	if cfg.StoreDriver != StoreSQLite {
		t.Errorf("StoreDriver = %v, want %v", cfg.StoreDriver, StoreSQLite)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "https endpoint", mutate: func(c *Config) { c.EndpointURL = "https://mmsc.example" }},
		{name: "file store", mutate: func(c *Config) { c.StoreDriver = StoreFile }},
		{name: "unknown store", mutate: func(c *Config) { c.StoreDriver = "redis" }, wantErr: true},
		{name: "unknown network", mutate: func(c *Config) { c.NetworkKind = "satellite" }, wantErr: true},
		{name: "missing interface", mutate: func(c *Config) { c.Interface = "" }, wantErr: true},
		{name: "missing feature", mutate: func(c *Config) { c.Feature = "" }, wantErr: true},
		{name: "missing endpoint", mutate: func(c *Config) { c.EndpointURL = "" }, wantErr: true},
		{name: "relative endpoint", mutate: func(c *Config) { c.EndpointURL = "/mms" }, wantErr: true},
		{name: "ftp endpoint", mutate: func(c *Config) { c.EndpointURL = "ftp://mmsc.example" }, wantErr: true},
		{name: "proxy port out of range", mutate: func(c *Config) { c.ProxyPort = 70000 }, wantErr: true},
		{name: "zero renewal", mutate: func(c *Config) { c.RenewalInterval = 0 }, wantErr: true},
		{name: "negative poll", mutate: func(c *Config) { c.PollInterval = -1 }, wantErr: true},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: true},
		{name: "unknown wake lock", mutate: func(c *Config) { c.WakeLock = "caffeine" }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
		{name: "log format case insensitive", mutate: func(c *Config) { c.LogFormat = "JSON" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	c1 := validConfig()
	if err := c1.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if want := filepath.Join("/var/lib/mmsgate", "mmsgate.db"); c1.StorePath != want {
		t.Errorf("StorePath = %v, want %v", c1.StorePath, want)
	}
	if want := filepath.Join("/var/lib/mmsgate", "spool"); c1.SpoolDir != want {
		t.Errorf("SpoolDir = %v, want %v", c1.SpoolDir, want)
	}

	c2 := validConfig()
	c2.StoreDriver = StoreFile
	if err := c2.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c2.StorePath != "/var/lib/mmsgate" {
		t.Errorf("StorePath = %v, want state dir", c2.StorePath)
	}

	// Explicit paths are kept.
	c3 := validConfig()
	c3.StorePath = "/data/msgs.db"
	c3.SpoolDir = "/data/spool"
	if err := c3.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if c3.StorePath != "/data/msgs.db" || c3.SpoolDir != "/data/spool" {
		t.Errorf("explicit paths overwritten: %v %v", c3.StorePath, c3.SpoolDir)
	}
}

func TestConfig_Settings(t *testing.T) {
	cfg := validConfig()
	cfg.ProxyHost = "10.0.0.1"
	cfg.ProxyPort = 8080

	s := cfg.Settings()
	if s.EndpointURL != cfg.EndpointURL || s.ProxyHost != "10.0.0.1" || s.ProxyPort != 8080 {
		t.Errorf("Settings() = %+v", s)
	}
}
