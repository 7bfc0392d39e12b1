package cliconfig

import "os"

// EnvPrefix is the prefix of every environment variable read by ApplyEnvConfig.
const EnvPrefix = "MMSGATE_"

// ApplyEnvConfig applies configuration from environment variables (MMSGATE_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(key string) string { return os.Getenv(EnvPrefix + key) }

	s.setString("state-dir", env("STATE_DIR"), &cfg.StateDir)
	s.setString("store-driver", env("STORE_DRIVER"), &cfg.StoreDriver)
	s.setString("store-path", env("STORE_PATH"), &cfg.StorePath)
	s.setString("network", env("NETWORK_KIND"), &cfg.NetworkKind)
	s.setString("feature", env("FEATURE"), &cfg.Feature)
	s.setString("interface", env("INTERFACE"), &cfg.Interface)
	s.setString("endpoint-url", env("ENDPOINT_URL"), &cfg.EndpointURL)
	s.setString("proxy-host", env("PROXY_HOST"), &cfg.ProxyHost)
	s.setString("user-agent", env("USER_AGENT"), &cfg.UserAgent)
	s.setString("rescan-schedule", env("RESCAN_SCHEDULE"), &cfg.RescanSchedule)
	s.setString("wake-lock", env("WAKE_LOCK"), &cfg.WakeLock)
	s.setString("spool-dir", env("SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setIntFromString("proxy-port", env("PROXY_PORT"), &cfg.ProxyPort); err != nil {
		return err
	}

	if err := s.setDuration("renewal-interval", env("RENEWAL_INTERVAL"), &cfg.RenewalInterval); err != nil {
		return err
	}
	if err := s.setDuration("poll", env("POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("timeout", env("HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", env("SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBoolFromString("defer-downloads", env("DEFER_DOWNLOADS"), &cfg.DeferDownloads)

	return nil
}
