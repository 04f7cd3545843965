// Package client is an HTTP client for the softphone control API.
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
	"strings"
	"time"

	"github.com/gorilla/websocket"

	types "github.com/sebas/softphone/api/types/v1"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
	Kind    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status: %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Client talks to a running softphone daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the daemon listening at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// BaseURL returns the daemon base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches daemon health
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var health types.HealthResponse
	if err := c.get(ctx, "/api/v1/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Status fetches the current call status
func (c *Client) Status(ctx context.Context) (*types.CallStatus, error) {
	var st types.CallStatus
	if err := c.get(ctx, "/api/v1/call", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Call places a call to "to". An empty from uses the default number.
func (c *Client) Call(ctx context.Context, to, from string) (*types.CallStatus, error) {
	var st types.CallStatus
	if err := c.post(ctx, "/api/v1/call", types.StartCallRequest{To: to, From: from}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Hangup ends the active call. It reports whether there was one.
func (c *Client) Hangup(ctx context.Context) (bool, error) {
	var resp types.EndCallResponse
	if err := c.delete(ctx, "/api/v1/call", &resp); err != nil {
		return false, err
	}
	return resp.Ended, nil
}

// ToggleMute flips the mute flag and returns the new value
func (c *Client) ToggleMute(ctx context.Context) (bool, error) {
	var resp types.ToggleResponse
	if err := c.post(ctx, "/api/v1/call/mute", nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// ToggleSpeaker flips the speakerphone and returns the new value
func (c *Client) ToggleSpeaker(ctx context.Context) (bool, error) {
	var resp types.ToggleResponse
	if err := c.post(ctx, "/api/v1/call/speaker", nil, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// SendDigits sends DTMF on the active call
func (c *Client) SendDigits(ctx context.Context, digits string) (bool, error) {
	var resp types.DigitsResponse
	if err := c.post(ctx, "/api/v1/call/digits", types.DigitsRequest{Digits: digits}, &resp); err != nil {
		return false, err
	}
	return resp.Sent, nil
}

// StartRecording starts recording the active call
func (c *Client) StartRecording(ctx context.Context) (*types.RecordingResponse, error) {
	var resp types.RecordingResponse
	if err := c.post(ctx, "/api/v1/recording", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopRecording stops the active recording
func (c *Client) StopRecording(ctx context.Context) (*types.RecordingResponse, error) {
	var resp types.RecordingResponse
	if err := c.delete(ctx, "/api/v1/recording", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Numbers lists the stored caller identities
func (c *Client) Numbers(ctx context.Context) ([]types.PhoneNumber, error) {
	var list []types.PhoneNumber
	if err := c.get(ctx, "/api/v1/numbers", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddNumber stores or updates a caller identity
func (c *Client) AddNumber(ctx context.Context, n types.PhoneNumber) (*types.PhoneNumber, error) {
	var out types.PhoneNumber
	if err := c.post(ctx, "/api/v1/numbers", n, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetDefaultNumber marks number as the default origin
func (c *Client) SetDefaultNumber(ctx context.Context, number string) error {
	return c.post(ctx, "/api/v1/numbers/"+url.PathEscape(number)+"/default", nil, nil)
}

// DeleteNumber removes a caller identity
func (c *Client) DeleteNumber(ctx context.Context, number string) error {
	return c.delete(ctx, "/api/v1/numbers/"+url.PathEscape(number), nil)
}

// Prefs fetches the preferences
func (c *Client) Prefs(ctx context.Context) (*types.Preferences, error) {
	var p types.Preferences
	if err := c.get(ctx, "/api/v1/prefs", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePrefs applies the non-nil fields of u
func (c *Client) UpdatePrefs(ctx context.Context, u types.PreferencesUpdate) (*types.Preferences, error) {
	var p types.Preferences
	if err := c.put(ctx, "/api/v1/prefs", u, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Watch streams call events to fn until ctx is cancelled or the daemon
// closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(types.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/v1/events"
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial events: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		fn(ev)
	}
}

// get performs an HTTP GET request
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post performs an HTTP POST request
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// put performs an HTTP PUT request
func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// delete performs an HTTP DELETE request
func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var er types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&er) == nil {
			apiErr.Message = er.Error
			apiErr.Kind = er.Kind
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}
