package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logAdapter "github.com/bft-labs/mmsgate/internal/adapters/log"
	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/pkg/mmsgate"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []mmsgate.Request
	err      error
}

func (g *fakeGateway) Submit(ctx context.Context, req mmsgate.Request) (mmsgate.Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return mmsgate.AdmissionRejected, g.err
	}
	if req.Kind == domain.KindUnknown {
		return mmsgate.AdmissionRejected, domain.ErrMalformedRequest
	}
	g.requests = append(g.requests, req)
	return mmsgate.AdmissionStarted, nil
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGateway) submitted() []mmsgate.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]mmsgate.Request(nil), g.requests...)
}

func newPlugin(t *testing.T, gw *fakeGateway) (*Plugin, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "spool")
	p := New(Config{Dir: dir, RetryInterval: time.Hour, DebounceDelay: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = p.Shutdown(context.Background())
	})
	require.NoError(t, p.Initialize(ctx, mmsgate.PluginConfig{Logger: logAdapter.NewNoopLogger(), Gateway: gw}))
	return p, dir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestPlugin_SubmitsAndRemoves(t *testing.T) {
	gw := &fakeGateway{}
	_, dir := newPlugin(t, gw)

	path, err := Write(dir, "001", File{Kind: domain.KindSend, Target: "out-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !exists(path) }, 2*time.Second, 10*time.Millisecond)
	reqs := gw.submitted()
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.KindSend, reqs[0].Kind)
	assert.Equal(t, "out-1", reqs[0].Target)
}

func TestPlugin_MalformedRenamed(t *testing.T) {
	gw := &fakeGateway{}
	_, dir := newPlugin(t, gw)

	path := filepath.Join(dir, "002.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"teleport"}`), 0o600))

	require.Eventually(t, func() bool { return exists(path + rejectedExt) }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, exists(path))
	assert.Empty(t, gw.submitted())
}

func TestPlugin_UnavailableLeftInPlace(t *testing.T) {
	gw := &fakeGateway{err: domain.ErrConnectivityUnavailable}
	dir := t.TempDir()
	p := New(Config{Dir: dir})
	p.gateway = gw
	p.logger = logAdapter.NewNoopLogger()

	path, err := Write(dir, "003", File{Kind: domain.KindRetrieve, Target: "n-1"})
	require.NoError(t, err)

	assert.Equal(t, 0, p.Sweep(context.Background()))
	assert.True(t, exists(path))

	gw.setErr(nil)
	assert.Equal(t, 1, p.Sweep(context.Background()))
	assert.False(t, exists(path))
}

func TestPlugin_InitialSweep(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	_, err := Write(dir, "a", File{Kind: domain.KindSend, Target: "x"})
	require.NoError(t, err)
	_, err = Write(dir, "b", File{Kind: domain.KindAcknowledgeRead, Target: "y"})
	require.NoError(t, err)

	gw := &fakeGateway{}
	p := New(Config{Dir: dir, RetryInterval: time.Hour})
	require.NoError(t, p.Initialize(context.Background(), mmsgate.PluginConfig{Logger: logAdapter.NewNoopLogger(), Gateway: gw}))
	defer p.Shutdown(context.Background())

	require.Eventually(t, func() bool { return len(gw.submitted()) == 2 }, 2*time.Second, 10*time.Millisecond)
	reqs := gw.submitted()
	assert.Equal(t, "x", reqs[0].Target)
	assert.Equal(t, "y", reqs[1].Target)
}

func TestFile_PushPayload(t *testing.T) {
	raw := []byte(`{"kind":"notify","push_payload":{"message_type":"notification-ind","content_location":"http://relay/m1"}}`)
	var f File
	require.NoError(t, json.Unmarshal(raw, &f))

	req := f.Request()
	assert.Equal(t, domain.KindNotify, req.Kind)
	n, err := domain.ParseNotification(req.PushPayload)
	require.NoError(t, err)
	assert.Equal(t, "http://relay/m1", n.ContentLocation)
}

func TestPlugin_DefaultDirFromStateDir(t *testing.T) {
	state := t.TempDir()
	p := New(DefaultConfig())
	require.NoError(t, p.Initialize(context.Background(), mmsgate.PluginConfig{
		StateDir: state,
		Logger:   logAdapter.NewNoopLogger(),
		Gateway:  &fakeGateway{},
	}))
	defer p.Shutdown(context.Background())

	assert.Equal(t, filepath.Join(state, "spool"), p.Dir())
	assert.True(t, exists(p.Dir()))
}

func TestPlugin_RequiresGateway(t *testing.T) {
	p := New(Config{Dir: t.TempDir()})
	assert.Error(t, p.Initialize(context.Background(), mmsgate.PluginConfig{Logger: logAdapter.NewNoopLogger()}))
}
