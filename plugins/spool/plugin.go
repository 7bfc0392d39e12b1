// Package spool provides a drop-directory intake for the gateway.
// Request files written to the spool directory are submitted as transactions.
package spool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
	"github.com/bft-labs/mmsgate/pkg/mmsgate"
)

const (
	requestExt  = ".json"
	rejectedExt = ".bad"
)

// File is the on-disk request format.
type File struct {
	ID          string                     `json:"id,omitempty"`
	Kind        domain.Kind                `json:"kind"`
	Target      string                     `json:"target,omitempty"`
	Override    *domain.ConnectionSettings `json:"override,omitempty"`
	PushPayload json.RawMessage            `json:"push_payload,omitempty"`
}

// Request converts the file into a gateway request.
func (f File) Request() mmsgate.Request {
	req := mmsgate.Request{ID: f.ID, Kind: f.Kind, Target: f.Target, Override: f.Override}
	if len(f.PushPayload) > 0 {
		req.PushPayload = []byte(f.PushPayload)
	}
	return req
}

// Plugin watches the spool directory and submits request files.
//
// Admitted files are removed. Malformed files are renamed with a .bad
// suffix. Files rejected for lack of connectivity stay for the next sweep.
type Plugin struct {
	mu      sync.Mutex
	sweepMu sync.Mutex

	dir           string
	retryInterval time.Duration
	debounceDelay time.Duration

	gateway  mmsgate.Submitter
	logger   ports.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the spool plugin.
type Config struct {
	// Dir is the spool directory. Default: <state dir>/spool.
	Dir string

	// RetryInterval is how often files left behind are retried.
	// Default: 1 minute
	RetryInterval time.Duration

	// DebounceDelay is the delay after a file event before sweeping.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: time.Minute,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a spool plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		dir:           cfg.Dir,
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "spool"
}

// Dir returns the watched directory.
func (p *Plugin) Dir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dir
}

// Initialize creates the spool directory and starts watching it.
func (p *Plugin) Initialize(ctx context.Context, cfg mmsgate.PluginConfig) error {
	if cfg.Gateway == nil {
		return errors.New("spool: gateway is required")
	}

	p.mu.Lock()
	if p.dir == "" {
		if cfg.StateDir == "" {
			p.mu.Unlock()
			return errors.New("spool: no directory configured")
		}
		p.dir = filepath.Join(cfg.StateDir, "spool")
	}
	p.gateway = cfg.Gateway
	p.logger = cfg.Logger
	dir := p.dir
	p.mu.Unlock()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("spool: create dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("spool: create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("spool: watch %s: %w", dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("spool watching", ports.String("dir", dir))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	p.Sweep(ctx)

	ticker := time.NewTicker(p.retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			p.Sweep(ctx)

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, requestExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceSweep(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("spool watcher error", ports.Err(err))
		}
	}
}

func (p *Plugin) debounceSweep(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A stopped timer never runs its func, so it releases its slot here.
	if p.debounce != nil && p.debounce.Stop() {
		p.wg.Done()
	}
	p.wg.Add(1)
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		defer p.wg.Done()
		p.Sweep(ctx)
	})
}

// Sweep submits every request file currently in the spool, oldest name first.
// It returns how many files were admitted.
func (p *Plugin) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	p.sweepMu.Lock()
	defer p.sweepMu.Unlock()

	p.mu.Lock()
	dir := p.dir
	p.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		p.logger.Warn("spool read failed", ports.Err(err))
		return 0
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), requestExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	admitted := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if p.submitFile(ctx, filepath.Join(dir, name)) {
			admitted++
		}
	}
	return admitted
}

func (p *Plugin) submitFile(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Warn("spool file unreadable", ports.String("file", path), ports.Err(err))
		}
		return false
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		p.reject(path, fmt.Errorf("%w: %v", domain.ErrMalformedRequest, err))
		return false
	}

	admission, err := p.gateway.Submit(ctx, f.Request())
	switch {
	case err == nil:
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			p.logger.Warn("spool file not removed", ports.String("file", path), ports.Err(rmErr))
		}
		p.logger.Info("spool request admitted",
			ports.String("file", filepath.Base(path)),
			ports.String("kind", f.Kind.String()),
			ports.String("admission", admission.String()),
		)
		return true
	case errors.Is(err, domain.ErrMalformedRequest):
		p.reject(path, err)
	case errors.Is(err, domain.ErrConnectivityUnavailable):
		p.logger.Debug("spool request left for later", ports.String("file", filepath.Base(path)))
	default:
		p.logger.Warn("spool request failed", ports.String("file", filepath.Base(path)), ports.Err(err))
	}
	return false
}

func (p *Plugin) reject(path string, cause error) {
	p.logger.Warn("spool request rejected", ports.String("file", filepath.Base(path)), ports.Err(cause))
	if err := os.Rename(path, path+rejectedExt); err != nil {
		p.logger.Error("spool file not renamed", ports.String("file", path), ports.Err(err))
	}
}

// Write atomically drops f into dir as a new request file and returns its path.
func Write(dir, name string, f File) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+requestExt)
	tmp := filepath.Join(dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}

// Ensure Plugin implements mmsgate.Plugin.
var _ mmsgate.Plugin = (*Plugin)(nil)
