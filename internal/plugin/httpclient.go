package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every plugin RPC when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 4096

// unixBaseURL is the placeholder host used for unix socket requests.
const unixBaseURL = "http://plugin"

// HTTPClient talks to a plugin over JSON/HTTP on TCP or a unix socket.
//
// Endpoints served by a plugin:
//
//	GET  /test
//	GET  /metadata
//	GET  /health
//	GET  /devices
//	GET  /devices/{uid}/readings
//	POST /devices/{uid}/write
//	GET  /transactions/{id}
type HTTPClient struct {
	addr    Address
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewHTTPClient creates a client bound to addr.
//
// Parameters:
//   - addr: TCP host:port (optionally with an http:// or https:// scheme) or unix socket path
//   - timeout: per-call deadline; zero selects DefaultTimeout
//
// Returns:
//   - *HTTPClient: ready to use, connections are opened lazily
//   - error: ErrInvalidAddress if addr cannot be dialled
func NewHTTPClient(addr Address, timeout time.Duration) (*HTTPClient, error) {
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	var base string
	switch addr.Mode {
	case ModeUnix:
		path := addr.Address
		dialer := &net.Dialer{}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", path)
		}
		base = unixBaseURL
	default:
		base = addr.Address
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			base = "http://" + base
		}
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
		}
	}

	return &HTTPClient{
		addr:    addr,
		baseURL: strings.TrimSuffix(base, "/"),
		timeout: timeout,
		http:    &http.Client{Transport: transport},
	}, nil
}

// NewHTTPClientFactory returns a ClientFactory producing HTTP clients with
// the given per-call timeout.
func NewHTTPClientFactory(timeout time.Duration) ClientFactory {
	return func(addr Address) (Client, error) {
		return NewHTTPClient(addr, timeout)
	}
}

// Address returns the address the client is bound to.
func (c *HTTPClient) Address() Address {
	return c.addr
}

// Test implements Client.
func (c *HTTPClient) Test(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/test", nil, nil)
}

// Metadata implements Client.
func (c *HTTPClient) Metadata(ctx context.Context) (*Metadata, error) {
	var meta Metadata
	if err := c.do(ctx, http.MethodGet, "/metadata", nil, &meta); err != nil {
		return nil, err
	}
	if meta.Name == "" {
		return nil, fmt.Errorf("%w: metadata from %s has no name", ErrTransport, c.addr)
	}
	return &meta, nil
}

// Health implements Client.
func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListDevices implements Client.
func (c *HTTPClient) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Read implements Client.
func (c *HTTPClient) Read(ctx context.Context, uid string) ([]Reading, error) {
	var readings []Reading
	path := "/devices/" + url.PathEscape(uid) + "/readings"
	if err := c.do(ctx, http.MethodGet, path, nil, &readings); err != nil {
		return nil, err
	}
	return readings, nil
}

// Write implements Client.
func (c *HTTPClient) Write(ctx context.Context, uid string, data []WriteData) ([]WriteTransaction, error) {
	var txns []WriteTransaction
	path := "/devices/" + url.PathEscape(uid) + "/write"
	if err := c.do(ctx, http.MethodPost, path, data, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// CheckTransaction implements Client.
func (c *HTTPClient) CheckTransaction(ctx context.Context, id string) (*TransactionStatus, error) {
	var status TransactionStatus
	if err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(id), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Close implements Client.
func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do performs one bounded round trip. A nil out discards the response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encoding %s %s: %w", ErrTransport, method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s on %s: %w", ErrTransport, method, path, c.addr, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
		return fmt.Errorf("%w: %s %s on %s returned %d: %s",
			ErrTransport, method, path, c.addr, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s %s: %w", ErrTransport, method, path, err)
	}
	return nil
}
