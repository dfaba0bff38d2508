package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/store"
)

// Client is a thin HTTP client for the treasury notification API.
// It handles Bearer token authentication, JSON marshaling, and
// automatic retry with exponential backoff on HTTP 429.
//
// Client implements store.Store.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

var _ store.Store = (*Client)(nil)

// NewClient creates a new API client. The token is the JWT issued by the
// treasury application, sent as a Bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: 3,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the bearer token.
func (c *Client) Token() string {
	return c.token
}

// Me resolves the principal the token was issued for.
func (c *Client) Me(ctx context.Context) (model.Principal, error) {
	var p model.Principal
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &p); err != nil {
		return model.Principal{}, err
	}
	return p, nil
}

// ListNotifications fetches the caller's notifications. The principal is
// implied by the token.
func (c *Client) ListNotifications(ctx context.Context, _ model.Principal) ([]model.Notification, error) {
	notifications := []model.Notification{}
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkNotificationRead marks a notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/notifications/%d/read", id)
	return notFound(c.do(ctx, http.MethodPatch, path, nil, nil))
}

// DeleteNotification deletes a notification. A 404 is reported as
// store.ErrNotFound.
func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/notifications/%d", id)
	return notFound(c.do(ctx, http.MethodDelete, path, nil, nil))
}

// EventPage is a slice of the server's push event replay buffer.
type EventPage struct {
	// Cursor is the sequence number to pass as after on the next call.
	Cursor int64             `json:"cursor"`
	Events []model.PushEvent `json:"events"`
}

// Events returns the push events with a sequence number above after. A
// negative after returns no events and the current cursor.
func (c *Client) Events(ctx context.Context, after int64) (EventPage, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatInt(after, 10))

	var page EventPage
	if err := c.do(ctx, http.MethodGet, "/api/notifications/events?"+q.Encode(), nil, &page); err != nil {
		return EventPage{}, err
	}
	return page, nil
}

// CreateAlert asks the server to raise an alert notification for a user.
func (c *Client) CreateAlert(ctx context.Context, req CreateAlertRequest) (model.Notification, error) {
	var n model.Notification
	if err := c.do(ctx, http.MethodPost, "/api/alerts", req, &n); err != nil {
		return model.Notification{}, err
	}
	return n, nil
}

// CreateAlertRequest is the body of POST /api/alerts.
type CreateAlertRequest struct {
	UserID  int64       `json:"user_id"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Alert   model.Alert `json:"alert"`
}

func notFound(err error) error {
	if IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}
	return err
}

// do is the core HTTP method that builds the request, handles auth,
// rate limiting with exponential backoff, and JSON (de)serialization.
func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return &AuthError{
				BaseURL: c.baseURL,
				Message: "token rejected (401): sign in again or update the stored token",
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, Method: method, Path: path}
			var apiErr errorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
				httpErr.Message = apiErr.Error
			}
			return httpErr
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}

		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

// IsNotFound reports whether err means the notification does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
