package control

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/sync"
)

// APIError is a non-success response of the control server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control server returned %d: %s", e.Status, e.Message)
}

// Busy reports whether the server rejected a trigger because a sync runs.
func (e *APIError) Busy() bool {
	return e.Status == http.StatusConflict
}

// Client talks to a running daemon.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

// NewClient creates a client for the daemon configured in cfg.
func NewClient(cfg config.ServeConfig) (*Client, error) {
	secret, err := readSecret(cfg.SecretFile)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: "http://" + cfg.ListenAddr,
		secret:  secret,
		http:    &http.Client{},
	}, nil
}

// Unavailable reports whether err means no daemon is listening.
func Unavailable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Status returns the daemon state.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Kill asks the daemon to kill its running sync.
func (c *Client) Kill(ctx context.Context) (bool, error) {
	var resp KillResponse
	if err := c.do(ctx, http.MethodPost, "/v1/kill", nil, &resp); err != nil {
		return false, err
	}
	return resp.Killed, nil
}

// Sync triggers a sync or compare in the daemon and waits for its outcome.
func (c *Client) Sync(ctx context.Context, dir sync.Direction, dryRun bool) (*TriggerResponse, error) {
	kind := "sync"
	if dryRun {
		kind = "compare"
	}
	var resp TriggerResponse
	if err := c.do(ctx, http.MethodPost, "/v1/"+kind+"/"+string(dir)+"?wait=true", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Save reports a saved document to the daemon.
func (c *Client) Save(ctx context.Context, path string) (*TriggerResponse, error) {
	return c.event(ctx, "save", path)
}

// Open reports an opened document to the daemon.
func (c *Client) Open(ctx context.Context, path string) (*TriggerResponse, error) {
	return c.event(ctx, "open", path)
}

func (c *Client) event(ctx context.Context, kind, path string) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.do(ctx, http.MethodPost, "/v1/events/"+kind+"?wait=true", EventRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Select changes the daemon's active site.
func (c *Client) Select(ctx context.Context, name string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sites/select", SelectRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deselect clears the daemon's active site.
func (c *Client) Deselect(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodPost, "/v1/sites/deselect", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != nil {
		req.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.Unmarshal(data, &e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// DialTimeout bounds how long the CLI waits to find a daemon.
const DialTimeout = 500 * time.Millisecond

// Probe reports whether a daemon answers at the configured address.
func (c *Client) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	_, err := c.Status(ctx)
	return err == nil
}
