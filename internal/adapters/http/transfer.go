package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/mmsgate/internal/domain"
	"github.com/bft-labs/mmsgate/internal/ports"
)

const (
	// ContentTypeMMS is the media type of encoded message PDUs.
	ContentTypeMMS = "application/vnd.wap.mms-message"

	// MessageIDHeader carries the relay's ID for a posted message.
	MessageIDHeader = "X-Mms-Message-Id"

	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 8 << 20
)

// ClientFactory returns the client used to reach the relay with settings.
type ClientFactory func(settings domain.ConnectionSettings) ports.HTTPClient

// Transfer implements ports.Transfer over HTTP.
type Transfer struct {
	clients   ClientFactory
	userAgent string
	logger    ports.Logger
}

// Option configures a Transfer.
type Option func(*Transfer)

// WithClientFactory overrides how clients are built for each settings value.
func WithClientFactory(f ClientFactory) Option {
	return func(t *Transfer) { t.clients = f }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transfer) { t.userAgent = ua }
}

// NewTransfer creates an HTTP transfer. Clients honour the proxy from the
// connection settings unless a factory is supplied.
func NewTransfer(logger ports.Logger, opts ...Option) *Transfer {
	t := &Transfer{
		clients:   ProxyClientFactory(defaultTimeout),
		userAgent: "mmsgate (" + runtime.GOOS + "/" + runtime.GOARCH + ")",
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ProxyClientFactory builds clients that route through the settings' proxy.
// One client is kept per proxy address so idle connections are reused
// across exchanges.
func ProxyClientFactory(timeout time.Duration) ClientFactory {
	var (
		mu      sync.Mutex
		clients = make(map[string]*http.Client)
	)
	return func(settings domain.ConnectionSettings) ports.HTTPClient {
		addr := settings.ProxyAddr()
		mu.Lock()
		defer mu.Unlock()
		if c, ok := clients[addr]; ok {
			return c
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if addr != "" {
			transport.Proxy = http.ProxyURL(&url.URL{Scheme: "http", Host: addr})
		} else {
			transport.Proxy = nil
		}
		c := &http.Client{Transport: transport, Timeout: timeout}
		clients[addr] = c
		return c
	}
}

// Send posts body to the endpoint and returns the relay's message ID.
func (t *Transfer) Send(ctx context.Context, settings domain.ConnectionSettings, body []byte) (string, error) {
	resp, err := t.do(ctx, settings, http.MethodPost, settings.EndpointURL, body)
	if err != nil {
		return "", err
	}
	if id := resp.header.Get(MessageIDHeader); id != "" {
		return id, nil
	}
	return strings.TrimSpace(string(resp.body)), nil
}

// Retrieve downloads the message at location.
func (t *Transfer) Retrieve(ctx context.Context, settings domain.ConnectionSettings, location string) ([]byte, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: empty content location", domain.ErrMalformedRequest)
	}
	resp, err := t.do(ctx, settings, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Acknowledge posts a response or read report to the endpoint.
func (t *Transfer) Acknowledge(ctx context.Context, settings domain.ConnectionSettings, body []byte) error {
	_, err := t.do(ctx, settings, http.MethodPost, settings.EndpointURL, body)
	return err
}

type response struct {
	header http.Header
	body   []byte
}

func (t *Transfer) do(ctx context.Context, settings domain.ConnectionSettings, method, target string, body []byte) (*response, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: no relay endpoint", domain.ErrMalformedRequest)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrMalformedRequest, err)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", ContentTypeMMS)
	if body != nil {
		req.Header.Set("Content-Type", ContentTypeMMS)
	}

	start := time.Now()
	resp, err := t.clients(settings).Do(req)
	if err != nil {
		return nil, &domain.TransferError{Kind: domain.FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransferError{Kind: domain.FailureTransport, StatusCode: resp.StatusCode, Err: err}
	}

	t.logger.Debug("relay exchange",
		ports.String("method", method),
		ports.String("url", target),
		ports.Int("status", resp.StatusCode),
		ports.Int("bytes", len(data)),
		ports.Duration("elapsed", time.Since(start)),
	)

	if kind := domain.ClassifyStatus(resp.StatusCode); kind != domain.FailureNone {
		return nil, &domain.TransferError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(data))),
		}
	}
	return &response{header: resp.Header, body: data}, nil
}
