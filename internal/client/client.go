// internal/client/client.go
package client

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

	"goldencobra/internal/bot"
	"goldencobra/internal/web"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Message)
}

// Client talks to the web API of a running server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secret     string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithWebhookSecret sends secret with every action.
func (c *Client) WithWebhookSecret(secret string) *Client {
	c.secret = secret
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) GetData(ctx context.Context) (*web.DataResponse, error) {
	var data web.DataResponse
	if err := c.get(ctx, "/api/data", &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]web.LeaderboardEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/leaderboard"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp web.LeaderboardResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) GetUser(ctx context.Context, identity string) (*web.UserResponse, error) {
	var resp web.UserResponse
	if err := c.get(ctx, "/api/users/"+url.PathEscape(identity), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendAction posts an action. A rejected action still returns the reply
// together with a *StatusError.
func (c *Client) SendAction(ctx context.Context, action bot.Action) (*web.ActionResponse, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/actions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(web.WebhookSecretHeader, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out web.ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("decode action response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &out, &StatusError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return &out, nil
}

// Health reports nil when the server and its store are up.
func (c *Client) Health(ctx context.Context) error {
	var status map[string]string
	return c.get(ctx, "/healthz", &status)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{StatusCode: resp.StatusCode}
	var body web.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil {
		se.Message = body.Error
	}
	return se
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}
