package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/mmsgate/internal/adapters/fs"
	"github.com/bft-labs/mmsgate/internal/adapters/guard"
	logAdapter "github.com/bft-labs/mmsgate/internal/adapters/log"
	"github.com/bft-labs/mmsgate/internal/adapters/netmon"
	"github.com/bft-labs/mmsgate/internal/adapters/sqlite"
	"github.com/bft-labs/mmsgate/internal/cliconfig"
	"github.com/bft-labs/mmsgate/internal/metrics"
	"github.com/bft-labs/mmsgate/internal/ports"
	"github.com/bft-labs/mmsgate/pkg/mmsgate"
	"github.com/bft-labs/mmsgate/plugins/spool"
)

const helpDescription = `
Run MMS transactions over a metered network lease.

Highlights:
  - Brings the MMS network up only while work is queued and drops it when idle.
  - Deduplicates repeated requests for the same message.
  - Keeps unfinished work in a local store and retries it on a schedule.
  - Accepts requests from a spool directory or the submit command.
`

var exampleUsage = strings.TrimSpace(`
  mmsgate --interface wwan0 --endpoint-url http://mmsc.example.net/mms
  mmsgate --config $HOME/.mmsgate/config.toml --metrics-addr :9109
  mmsgate submit send --body ./message.mms
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:     "mmsgate",
		Short:   "Run MMS transactions over a metered network lease",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			log.Info().Interface("config", cfg).Msg("configuration")
			return run(cmd.Context(), cfg)
		},
	}

	// Flags shared by every command.
	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.mmsgate/config.toml)")
	flags.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory (default: $HOME/.mmsgate/state)")
	flags.StringVar(&cfg.StoreDriver, "store-driver", cfg.StoreDriver, "message store: sqlite or file")
	flags.StringVar(&cfg.StorePath, "store-path", cfg.StorePath, "message store location (derived from state-dir)")
	flags.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "request spool directory (derived from state-dir)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")

	flags.StringVar(&cfg.NetworkKind, "network", cfg.NetworkKind, "network kind carrying MMS: mobile or wifi")
	flags.StringVar(&cfg.Feature, "feature", cfg.Feature, "feature requested on the network")
	flags.StringVar(&cfg.Interface, "interface", cfg.Interface, "network interface backing the MMS network")
	flags.StringVar(&cfg.EndpointURL, "endpoint-url", cfg.EndpointURL, "MMS relay URL")
	flags.StringVar(&cfg.ProxyHost, "proxy-host", cfg.ProxyHost, "relay proxy host (optional)")
	flags.IntVar(&cfg.ProxyPort, "proxy-port", cfg.ProxyPort, "relay proxy port")
	flags.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "user agent sent to the relay (derived from the device id)")

	root.Flags().DurationVar(&cfg.RenewalInterval, "renewal-interval", cfg.RenewalInterval, "how often an active network lease is renewed")
	root.Flags().DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "interface poll interval")
	root.Flags().DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "relay HTTP timeout")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long to wait for in-flight transactions on exit")
	root.Flags().StringVar(&cfg.RescanSchedule, "rescan-schedule", cfg.RescanSchedule, "cron schedule for retrying unfinished work")
	root.Flags().StringVar(&cfg.WakeLock, "wake-lock", cfg.WakeLock, "wake lock held while the lease is up: memory, logind or none")
	root.Flags().BoolVar(&cfg.DeferDownloads, "defer-downloads", cfg.DeferDownloads, "store notifications instead of downloading immediately")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address for the Prometheus endpoint (disabled when empty)")

	root.AddCommand(newSubmitCmd(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("mmsgate")
		os.Exit(1)
	}
}

// loadConfig applies the config file, then MMSGATE_* variables, then validates.
// Flags set on the command line win over both.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

func newLogger(cfg cliconfig.Config) (*logAdapter.ZerologAdapter, error) {
	return logAdapter.NewZerolog(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func openStore(ctx context.Context, cfg cliconfig.Config) (mmsgate.MessageStore, error) {
	switch cfg.StoreDriver {
	case cliconfig.StoreFile:
		return fs.NewMessageFileStore(cfg.StorePath), nil
	default:
		return sqlite.Open(ctx, cfg.StorePath, 5*time.Second)
	}
}

// openGuard returns the wake lock and a func closing whatever backs it.
func openGuard(cfg cliconfig.Config) (mmsgate.ResourceGuard, func(), error) {
	switch cfg.WakeLock {
	case cliconfig.WakeLockLogind:
		g, conn, err := guard.DialInhibit("mmsgate", "MMS transaction in progress")
		if err != nil {
			return nil, nil, err
		}
		return g, conn.Close, nil
	case cliconfig.WakeLockNone:
		return nil, func() {}, nil
	default:
		return guard.NewMemory(), func() {}, nil
	}
}

func run(ctx context.Context, cfg cliconfig.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		deviceID, err := cliconfig.LoadDeviceID(cfg.StateDir)
		if err != nil {
			return fmt.Errorf("load device id: %w", err)
		}
		userAgent = cliconfig.DefaultUserAgent(getVersion(), deviceID)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	wakeLock, closeGuard, err := openGuard(cfg)
	if err != nil {
		return fmt.Errorf("wake lock: %w", err)
	}
	defer closeGuard()

	kind := ports.NetworkKind(cfg.NetworkKind)
	monitor := netmon.New(netmon.Config{
		Attachments: map[ports.NetworkKind]netmon.Attachment{
			kind: {Interface: cfg.Interface, Settings: cfg.Settings()},
		},
		PollInterval: cfg.PollInterval,
	}, logger.With("netmon"))

	recorder := metrics.NewRecorder()

	opts := []mmsgate.Option{
		mmsgate.WithLogger(logger),
		mmsgate.WithConnectivityProvider(monitor),
		mmsgate.WithStore(store),
		mmsgate.WithMetrics(recorder),
		spool.WithSpool(spool.Config{Dir: cfg.SpoolDir}),
	}
	if wakeLock != nil {
		opts = append(opts, mmsgate.WithResourceGuard(wakeLock))
	}

	gw, err := mmsgate.New(mmsgate.Config{
		StateDir:        cfg.StateDir,
		NetworkKind:     kind,
		Feature:         cfg.Feature,
		RenewalInterval: cfg.RenewalInterval,
		ShutdownTimeout: cfg.ShutdownTimeout,
		DeferDownloads:  cfg.DeferDownloads,
		UserAgent:       userAgent,
		HTTPTimeout:     cfg.HTTPTimeout,
		RescanSchedule:  cfg.RescanSchedule,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify failed", ports.Err(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	events, unsubscribe := gw.Subscribe(32)
	defer unsubscribe()
	g.Go(func() error {
		logEvents(gctx, logger.Logger(), events)
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           recorder.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listening", ports.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	<-gctx.Done()
	logger.Info("stopping")
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("sd_notify failed", ports.Err(err))
	}

	stopErr := gw.Stop()
	if stopErr != nil && !errors.Is(stopErr, mmsgate.ErrNotRunning) {
		stopErr = fmt.Errorf("stop gateway: %w", stopErr)
	} else {
		stopErr = nil
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return stopErr
}

func logEvents(ctx context.Context, log zerolog.Logger, events <-chan mmsgate.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch data := ev.Data.(type) {
			case mmsgate.Completion:
				log.Info().
					Str("kind", data.Kind.String()).
					Str("target", data.Target).
					Str("state", string(data.State)).
					Msg("transaction finished")
			case mmsgate.NewMessageEvent:
				log.Info().Str("message_id", data.MessageID).Msg("message received")
			}
		}
	}
}
