package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"roomgate/internal/limiter"
	"roomgate/internal/models"
	"strings"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// errClient marks 4xx answers so they don't count against the breaker.
var errClient = errors.New("client error")

// RemoteClient implements Checker against a coordinator's dispatch endpoint.
// Calls go through a circuit breaker so a failing coordinator is reported as
// ErrUnavailable without waiting for a timeout on every request.
type RemoteClient struct {
	baseURL        string
	domain         string
	identityHeader string
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker
}

// RemoteOption configures a RemoteClient.
type RemoteOption func(*RemoteClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(c *RemoteClient) {
		c.httpClient = client
	}
}

// WithDomain addresses a domain other than the default one.
func WithDomain(domain string) RemoteOption {
	return func(c *RemoteClient) {
		c.domain = domain
	}
}

// NewRemoteClient creates a client for the coordinator at baseURL.
func NewRemoteClient(baseURL string, cfg models.AdmissionConfig, opts ...RemoteOption) *RemoteClient {
	c := &RemoteClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		domain:         models.DefaultDomain,
		identityHeader: cfg.IdentityHeader,
		httpClient:     &http.Client{Timeout: cfg.RequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "coordinator",
		Timeout: cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return c
}

// State returns the breaker state, for health reporting.
func (c *RemoteClient) State() gobreaker.State {
	return c.breaker.State()
}

func (c *RemoteClient) endpoint(action string) string {
	return c.baseURL + "/v1/limiter/" + url.PathEscape(c.domain) + "/" + action
}

// do sends one request through the breaker and decodes a JSON answer into out.
func (c *RemoteClient) do(ctx context.Context, method, target, identity string, body any, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, target, identity, body, out)
	})

	if err == nil || errors.Is(err, errClient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func (c *RemoteClient) roundTrip(ctx context.Context, method, target, identity string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" && c.identityHeader != "" {
		req.Header.Set(c.identityHeader, identity)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp models.ErrorResponse
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
			msg = errResp.Message
		}
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w: %s", errClient, limiter.ErrInvalidArgument, msg)
		}
		return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *RemoteClient) check(ctx context.Context, action, identity string) (models.RateLimitResult, error) {
	var result models.RateLimitResult
	err := c.do(ctx, http.MethodGet, c.endpoint(action), identity, nil, &result)
	return result, err
}

func (c *RemoteClient) CheckRoomCreation(ctx context.Context, identity string) (models.RateLimitResult, error) {
	return c.check(ctx, "check-room-creation", identity)
}

func (c *RemoteClient) CheckConnection(ctx context.Context, identity string) (models.RateLimitResult, error) {
	return c.check(ctx, "check-connection", identity)
}

func (c *RemoteClient) CheckAPIRate(ctx context.Context, identity string) (models.RateLimitResult, error) {
	return c.check(ctx, "check-api-rate", identity)
}

func (c *RemoteClient) CheckCallDuration(ctx context.Context, roomID string) (models.CallDurationResult, error) {
	var result models.CallDurationResult
	if roomID == "" {
		return result, limiter.NewInvalidArgumentError("Room ID required")
	}
	target := c.endpoint("check-call-duration") + "?roomId=" + url.QueryEscape(roomID)
	err := c.do(ctx, http.MethodGet, target, "", nil, &result)
	return result, err
}

func (c *RemoteClient) roomUpdate(ctx context.Context, action, roomID string) error {
	if roomID == "" {
		return limiter.NewInvalidArgumentError("Room ID required")
	}
	return c.do(ctx, http.MethodPost, c.endpoint(action), "", models.RoomRequest{RoomID: roomID}, nil)
}

func (c *RemoteClient) MarkRoomEmpty(ctx context.Context, roomID string) error {
	return c.roomUpdate(ctx, "mark-room-empty", roomID)
}

func (c *RemoteClient) MarkRoomActive(ctx context.Context, roomID string) error {
	return c.roomUpdate(ctx, "mark-room-active", roomID)
}

func (c *RemoteClient) EndCall(ctx context.Context, roomID string) error {
	return c.roomUpdate(ctx, "end-call", roomID)
}

func (c *RemoteClient) CleanupOldRooms(ctx context.Context) (models.CleanupResult, error) {
	var result models.CleanupResult
	err := c.do(ctx, http.MethodPost, c.endpoint("cleanup-old-rooms"), "", nil, &result)
	return result, err
}
