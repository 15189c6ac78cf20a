// Package client is the HTTP client the lofi CLI uses to talk to lofid.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lofi/internal/api"
)

var (
	// ErrAPIUnavailable reports a daemon that could not be reached.
	ErrAPIUnavailable = errors.New("lofi API unavailable")
	// ErrRateLimited matches every *RateLimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrBusy matches every *BusyError.
	ErrBusy = errors.New("pipeline busy")
	// ErrNotFound is returned for unknown runs.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when the bearer token is missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
)

// RateLimitedError is returned for a 429 response.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrRateLimited, e.RetryAfter)
}

// Is lets errors.Is match ErrRateLimited.
func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// BusyError is returned for a 409 response.
type BusyError struct {
	ActiveRunID string
}

func (e *BusyError) Error() string {
	if e.ActiveRunID == "" {
		return ErrBusy.Error()
	}
	return fmt.Sprintf("%s: run %s is active", ErrBusy, e.ActiveRunID)
}

// Is lets errors.Is match ErrBusy.
func (e *BusyError) Is(target error) bool { return target == ErrBusy }

// StatusError is any other non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// Is maps 404 and 401 onto their sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	}
	return false
}

// Client calls the lofid HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for the API bound at bind (host:port or URL).
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, fmt.Errorf("%w: api bind address not configured", ErrAPIUnavailable)
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Trigger requests a new run.
func (c *Client) Trigger(ctx context.Context, req api.TriggerRequest) (api.TriggerResponse, error) {
	var out api.TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/runs", nil, req, &out)
	return out, err
}

// Run fetches one run.
func (c *Client) Run(ctx context.Context, id string) (api.Run, error) {
	var out api.Run
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Runs lists recent runs, newest first. limit <= 0 uses the server default.
func (c *Client) Runs(ctx context.Context, limit int) ([]api.Run, error) {
	var out api.RunListResponse
	err := c.do(ctx, http.MethodGet, "/api/runs", limitQuery(limit), nil, &out)
	return out.Runs, err
}

// RunEvents returns the history of a run, oldest first.
func (c *Client) RunEvents(ctx context.Context, id string) ([]api.Event, error) {
	var out api.EventListResponse
	err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"/events", nil, nil, &out)
	return out.Events, err
}

// Events lists recent events, newest first. limit <= 0 uses the server default.
func (c *Client) Events(ctx context.Context, limit int) ([]api.Event, error) {
	var out api.EventListResponse
	err := c.do(ctx, http.MethodGet, "/api/events", limitQuery(limit), nil, &out)
	return out.Events, err
}

// Status fetches the daemon summary.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Health fetches the readiness report. A 503 still yields the decoded
// report together with a *StatusError.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

// WaitForRun polls until the run reaches a terminal status or ctx ends.
func (c *Client) WaitForRun(ctx context.Context, id string, interval time.Duration) (api.Run, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.Run(ctx, id)
		if err != nil {
			return run, err
		}
		if run.Status == "succeeded" || run.Status == "failed" {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if IsAPIUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, out)
		}
		return decodeError(resp, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response, data []byte) error {
	var payload api.ErrorResponse
	_ = json.Unmarshal(data, &payload)
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		seconds := payload.RetryAfterSeconds
		if header, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && header > 0 {
			seconds = header
		}
		return &RateLimitedError{RetryAfter: time.Duration(seconds) * time.Second}
	case http.StatusConflict:
		return &BusyError{ActiveRunID: payload.ActiveRunID}
	}
	return &StatusError{Code: resp.StatusCode, Message: payload.Error}
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}

// IsAPIUnavailable reports connection-level failures.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAPIUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
