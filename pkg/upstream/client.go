package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DetachPath is the administration route that removes a process from the pool.
const DetachPath = "/pool/detach_process.json"

// ErrNoAddress is returned by Dial when no admin address is configured.
var ErrNoAddress = errors.New("no pool admin address configured")

// Client is a connection to the pool administration endpoint.
type Client interface {
	// Detach asks the pool to stop routing requests to the process
	// registered under key.
	Detach(ctx context.Context, key string) error

	// Close releases the client's connections.
	Close() error
}

// Dialer opens a Client with the given credentials.
type Dialer interface {
	Dial(ctx context.Context, username, password string) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, username, password string) (Client, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, username, password string) (Client, error) {
	return f(ctx, username, password)
}

// StatusError is returned when the pool answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pool admin returned %d: %s", e.StatusCode, e.Body)
}

// HTTPDialer dials the pool administration endpoint over HTTP. Address is
// either an http(s) URL or "unix:/path/to/socket".
type HTTPDialer struct {
	Address string
	Timeout time.Duration
}

// Dial creates an HTTP client. No connection is made until the first request.
func (d HTTPDialer) Dial(_ context.Context, username, password string) (Client, error) {
	if d.Address == "" {
		return nil, ErrNoAddress
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	transport := &http.Transport{
		MaxIdleConns:    1,
		IdleConnTimeout: 30 * time.Second,
	}
	baseURL := strings.TrimRight(d.Address, "/")

	if path, ok := strings.CutPrefix(d.Address, "unix:"); ok {
		dialer := &net.Dialer{Timeout: timeout}
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", path)
		}
		baseURL = "http://pool"
	}

	return &httpClient{
		http:     &http.Client{Transport: transport, Timeout: timeout},
		baseURL:  baseURL,
		username: username,
		password: password,
	}, nil
}

type httpClient struct {
	http     *http.Client
	baseURL  string
	username string
	password string
}

type detachRequest struct {
	DetachKey string `json:"detach_key"`
}

func (c *httpClient) Detach(ctx context.Context, key string) error {
	body, err := json.Marshal(detachRequest{DetachKey: key})
	if err != nil {
		return fmt.Errorf("failed to encode detach request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+DetachPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build detach request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("detach request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *httpClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// DecodePassword decodes a base64 pool account password. Whitespace,
// including line breaks left by encoders that wrap their output, is ignored.
func DecodePassword(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(encoded), ""))
	if err != nil {
		return "", fmt.Errorf("invalid pool password encoding: %w", err)
	}
	return string(raw), nil
}
