// Package adminclient talks to the administrative endpoint of a remote router.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/nimburion/mountsync/pkg/observability/logger"
)

const (
	DefaultScheme      = "http"
	DefaultRefreshPath = "/admin/mount-table/refresh"
	DefaultTimeout     = 5 * time.Second

	maxResponseBody = 64 << 10
)

// ErrRemote classifies failures reported by, or while reaching, a remote router.
var ErrRemote = errors.New("router admin request failed")

// Client is the administrative surface of one router: it asks the router to
// reload its mount table cache.
type Client interface {
	Refresh(ctx context.Context) (bool, error)
	Address() string
	io.Closer
}

// Config configures HTTP admin clients.
type Config struct {
	Scheme      string
	RefreshPath string
	Timeout     time.Duration
	// Token is sent as a bearer token when set.
	Token string
}

func (c *Config) normalize() {
	c.Scheme = strings.TrimSpace(c.Scheme)
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	c.RefreshPath = strings.TrimSpace(c.RefreshPath)
	if c.RefreshPath == "" {
		c.RefreshPath = DefaultRefreshPath
	}
	if !strings.HasPrefix(c.RefreshPath, "/") {
		c.RefreshPath = "/" + c.RefreshPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

type refreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HTTPClient calls POST <scheme>://<admin address><refresh path>. Every client
// owns its transport, so Close releases the pooled connections to that router.
type HTTPClient struct {
	address   string
	url       string
	token     string
	transport *http.Transport
	http      *http.Client
	log       logger.Logger
}

// NewHTTPClient creates an admin client for the router at address (host:port
// or a full URL).
func NewHTTPClient(address string, cfg Config, log logger.Logger) (*HTTPClient, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: admin address is required", ErrRemote)
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.normalize()

	base := address
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = cfg.Scheme + "://" + base
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 2

	return &HTTPClient{
		address:   address,
		url:       strings.TrimRight(base, "/") + cfg.RefreshPath,
		token:     cfg.Token,
		transport: transport,
		http:      &http.Client{Timeout: cfg.Timeout, Transport: transport},
		log:       log.With("admin_address", address),
	}, nil
}

// NewFactory returns a constructor suitable for the client cache.
func NewFactory(cfg Config, log logger.Logger) func(ctx context.Context, address string) (Client, error) {
	return func(_ context.Context, address string) (Client, error) {
		client, err := NewHTTPClient(address, cfg, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Address returns the router admin address the client is bound to.
func (c *HTTPClient) Address() string {
	return c.address
}

// Refresh asks the router to reload its mount table. A 2xx reply carrying
// {"success": false} is reported as (false, nil).
func (c *HTTPClient) Refresh(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(nil))
	if err != nil {
		return false, fmt.Errorf("%w: build request: %w", ErrRemote, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", ErrRemote, c.address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return false, fmt.Errorf("%w: read response from %s: %w", ErrRemote, c.address, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: %s returned status %d", ErrRemote, c.address, resp.StatusCode)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return true, nil
	}

	var decoded refreshResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, fmt.Errorf("%w: decode response from %s: %w", ErrRemote, c.address, err)
	}
	if !decoded.Success && decoded.Message != "" {
		c.log.Debug("router declined mount table refresh", "message", decoded.Message)
	}
	return decoded.Success, nil
}

// Close drops idle connections to the router.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
