package notifyclient

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
)

const defaultTimeout = 15 * time.Second

// API is the server surface the notification center depends on.
type API interface {
	List(ctx context.Context, opts ListOptions) (*Page, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// APIError is a failure reported by the server through the response envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notifyclient: http %d", e.StatusCode)
	}
	return fmt.Sprintf("notifyclient: %s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the notification and welcome REST endpoints.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a client for the server at baseURL. token is sent as a
// bearer token and may be empty for public endpoints.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("notifyclient: parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("notifyclient: base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: parsed,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// List fetches one page of notifications.
func (c *Client) List(ctx context.Context, opts ListOptions) (*Page, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UnreadOnly {
		query.Set("unread_only", "true")
	}
	if len(opts.Types) > 0 {
		query.Set("types", strings.Join(opts.Types, ","))
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, "/api/notifications", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

// MarkAllRead marks every notification as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil, nil)
}

// Delete removes one notification.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil, nil)
}

// ClearAll removes every notification.
func (c *Client) ClearAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/clear/all", nil, nil, nil)
}

// Stats returns counts by read state and type.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.do(ctx, http.MethodGet, "/api/notifications/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Settings returns the caller's notification preferences.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var settings Settings
	if err := c.do(ctx, http.MethodGet, "/api/notifications/settings", nil, nil, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateSettings applies a partial preferences change and returns the stored result.
func (c *Client) UpdateSettings(ctx context.Context, update SettingsUpdate) (*Settings, error) {
	var settings Settings
	if err := c.do(ctx, http.MethodPut, "/api/notifications/settings", nil, update, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// WelcomeStatus queries the public welcome probe for userID.
func (c *Client) WelcomeStatus(ctx context.Context, userID string) (*WelcomeStatus, error) {
	var status WelcomeStatus
	if err := c.do(ctx, http.MethodGet, "/api/welcome/status", url.Values{"user_id": {userID}}, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ClaimBonus claims the welcome bonus for the token's user.
func (c *Client) ClaimBonus(ctx context.Context) (*BonusResult, error) {
	var result BonusResult
	if err := c.do(ctx, http.MethodPost, "/api/welcome/bonus", nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("notifyclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("notifyclient: build request: %w", err)
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
		return fmt.Errorf("notifyclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("notifyclient: decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("notifyclient: decode data: %w", err)
	}
	return nil
}
