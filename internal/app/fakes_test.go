package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

var testSettings = domain.ConnectionSettings{EndpointURL: "http://mmsc.test/mms", ProxyHost: "10.0.0.1", ProxyPort: 8080}

// fakeProvider answers AlreadyActive once connected and RequestStarted before.
type fakeProvider struct {
	mu         sync.Mutex
	available  bool
	active     bool
	err        error
	panicOnce  bool
	settings   domain.ConnectionSettings
	requests   int
	releases   int
	releaseErr error
	subs       []chan ports.NetworkInfo
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{available: true, settings: testSettings}
}

func (p *fakeProvider) IsAvailable(ports.NetworkKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *fakeProvider) RequestFeature(context.Context, ports.NetworkKind, string) (ports.FeatureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.panicOnce {
		p.panicOnce = false
		panic("provider exploded")
	}
	if p.err != nil {
		return 0, p.err
	}
	if p.active {
		return ports.FeatureAlreadyActive, nil
	}
	return ports.FeatureRequestStarted, nil
}

func (p *fakeProvider) ReleaseFeature(context.Context, ports.NetworkKind, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
	p.active = false
	return p.releaseErr
}

func (p *fakeProvider) Settings(ports.NetworkKind) domain.ConnectionSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

func (p *fakeProvider) Subscribe(buffer int) (<-chan ports.NetworkInfo, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan ports.NetworkInfo, buffer)
	p.subs = append(p.subs, ch)
	return ch, func() {}
}

func (p *fakeProvider) setSettings(s domain.ConnectionSettings) {
	p.mu.Lock()
	p.settings = s
	p.mu.Unlock()
}

func (p *fakeProvider) setActive(active bool) {
	p.mu.Lock()
	p.active = active
	p.mu.Unlock()
}

// connect marks the path active and publishes the change to subscribers.
func (p *fakeProvider) connect() ports.NetworkInfo {
	p.mu.Lock()
	p.active = true
	info := ports.NetworkInfo{Kind: ports.NetworkMobile, Connected: true, Available: true, Interface: "rmnet0", Settings: p.settings}
	subs := append([]chan ports.NetworkInfo(nil), p.subs...)
	p.mu.Unlock()
	for _, ch := range subs {
		ch <- info
	}
	return info
}

func (p *fakeProvider) counts() (requests, releases int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests, p.releases
}

type fakeGuard struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
	err      error
}

func (g *fakeGuard) Acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil
	}
	g.acquires++
	g.held = true
	return nil
}

func (g *fakeGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return nil
	}
	g.releases++
	g.held = false
	return g.err
}

func (g *fakeGuard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

func (g *fakeGuard) counts() (acquires, releases int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquires, g.releases
}

type fakeStore struct {
	mu       sync.Mutex
	messages map[string]domain.Message
	failures map[string]domain.ErrorKind
	nextID   int
	listErr  error
}

func newFakeStore(msgs ...domain.Message) *fakeStore {
	s := &fakeStore{messages: map[string]domain.Message{}, failures: map[string]domain.ErrorKind{}}
	for _, m := range msgs {
		s.messages[m.ID] = m
	}
	return s
}

func (s *fakeStore) Save(_ context.Context, msg domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		s.nextID++
		msg.ID = fmt.Sprintf("stored-%d", s.nextID)
	}
	s.messages[msg.ID] = msg
	return msg.ID, nil
}

func (s *fakeStore) Load(_ context.Context, id string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, kind domain.ErrorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id] = kind
	return nil
}

func (s *fakeStore) PendingWork(context.Context) ([]domain.PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var items []domain.PendingItem
	for _, m := range s.messages {
		if m.Pending() {
			items = append(items, domain.PendingItem{Target: m.ID, MessageType: m.MessageType, LastError: m.LastError})
		}
	}
	return items, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) get(id string) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[id]
}

func (s *fakeStore) failure(id string) (domain.ErrorKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.failures[id]
	return k, ok
}

// fakeTransfer blocks Send and Retrieve until a token is sent on gate,
// when gate is non-nil.
type fakeTransfer struct {
	gate chan struct{}

	mu       sync.Mutex
	err      error
	body     []byte
	sent     [][]byte
	acks     [][]byte
	fetched  []string
	settings []domain.ConnectionSettings
}

func (f *fakeTransfer) wait(ctx context.Context) error {
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransfer) Send(ctx context.Context, settings domain.ConnectionSettings, body []byte) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, settings)
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, body)
	return fmt.Sprintf("remote-%d", len(f.sent)), nil
}

func (f *fakeTransfer) Retrieve(ctx context.Context, settings domain.ConnectionSettings, location string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, settings)
	if f.err != nil {
		return nil, f.err
	}
	f.fetched = append(f.fetched, location)
	if f.body != nil {
		return f.body, nil
	}
	return []byte("payload:" + location), nil
}

func (f *fakeTransfer) Acknowledge(_ context.Context, _ domain.ConnectionSettings, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, body)
	return nil
}

func (f *fakeTransfer) usedSettings() []domain.ConnectionSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConnectionSettings(nil), f.settings...)
}

func (f *fakeTransfer) ackBodies() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.acks...)
}

type fakeRetry struct {
	mu    sync.Mutex
	armed int
}

func (r *fakeRetry) Arm(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed++
	return nil
}

func (r *fakeRetry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armed
}

type advice struct {
	kind   domain.Kind
	advice domain.Advisory
}

type fakeAdvisor struct {
	mu   sync.Mutex
	seen []advice
}

func (a *fakeAdvisor) Advise(kind domain.Kind, adv domain.Advisory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, advice{kind, adv})
}

func (a *fakeAdvisor) all() []advice {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]advice(nil), a.seen...)
}

type chanObserver struct {
	ch chan domain.Completion
}

func (o *chanObserver) OnCompletion(c domain.Completion) {
	o.ch <- c
}

// harness wires a dispatcher to fakes. The loop is only started by run.
type harness struct {
	d        *Dispatcher
	provider *fakeProvider
	guard    *fakeGuard
	store    *fakeStore
	transfer *fakeTransfer
	retry    *fakeRetry
	advisor  *fakeAdvisor
	observer *chanObserver
	clock    *clock.Mock
}

func newHarness(t *testing.T, msgs ...domain.Message) *harness {
	t.Helper()
	h := &harness{
		provider: newFakeProvider(),
		guard:    &fakeGuard{},
		store:    newFakeStore(msgs...),
		transfer: &fakeTransfer{gate: make(chan struct{})},
		retry:    &fakeRetry{},
		advisor:  &fakeAdvisor{},
		observer: &chanObserver{ch: make(chan domain.Completion, 16)},
		clock:    clock.NewMock(),
	}
	h.d = NewDispatcher(DispatcherConfig{NetworkKind: ports.NetworkMobile}, h.deps())
	return h
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Provider: h.provider,
		Guard:    h.guard,
		Store:    h.store,
		Transfer: h.transfer,
		Retry:    h.retry,
		Advisor:  h.advisor,
		Observer: h.observer,
		Logger:   mockLogger{},
		Clock:    h.clock,
	}
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, err := h.d.Snapshot(ctx)
	require.NoError(t, err)
	return snap
}

// peek is snapshot for use inside Eventually conditions.
func (h *harness) peek() Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap, _ := h.d.Snapshot(ctx)
	return snap
}

func (h *harness) submit(t *testing.T, kind domain.Kind, target string) (Admission, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.d.Submit(ctx, domain.Request{Kind: kind, Target: target})
}

// releaseOne lets one blocked Send or Retrieve through.
func (h *harness) releaseOne(t *testing.T) {
	t.Helper()
	select {
	case h.transfer.gate <- struct{}{}:
	case <-time.After(time.Second):
		t.Fatal("no transfer waiting")
	}
}

func (h *harness) nextCompletion(t *testing.T) domain.Completion {
	t.Helper()
	select {
	case c := <-h.observer.ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion")
		return domain.Completion{}
	}
}

func (h *harness) noCompletion(t *testing.T) {
	t.Helper()
	select {
	case c := <-h.observer.ch:
		t.Fatalf("unexpected completion %+v", c)
	case <-time.After(20 * time.Millisecond):
	}
}

func outbound(id string) domain.Message {
	return domain.Message{ID: id, MessageType: domain.MessageTypeSendReq, Body: []byte("body-" + id), Status: domain.StatusPending}
}

func notification(id string) domain.Message {
	return domain.Message{ID: id, MessageType: domain.MessageTypeNotificationInd, ContentLocation: "http://mmsc.test/" + id, TransactionID: "tx-" + id, Status: domain.StatusPending}
}

var errBoom = errors.New("boom")

type mockLogger struct{}

func (mockLogger) Debug(string, ...ports.Field) {}
func (mockLogger) Info(string, ...ports.Field)  {}
func (mockLogger) Warn(string, ...ports.Field)  {}
func (mockLogger) Error(string, ...ports.Field) {}

type logEntry struct {
	msg    string
	fields []ports.Field
}

// recordingLogger keeps debug entries for assertions.
type recordingLogger struct {
	mockLogger
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) Debug(msg string, fields ...ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{msg: msg, fields: fields})
}

func (l *recordingLogger) find(msg string) (logEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}
