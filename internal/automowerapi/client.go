// Package automowerapi talks to the robotic mower cloud: a JSON:API REST
// endpoint for status and commands and a websocket for pushed updates.
package automowerapi

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

	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://api.amc.husqvarna.dev/v1"
	DefaultStreamURL = "wss://ws.openapi.husqvarna.dev/v1"

	contentType = "application/vnd.api+json"
)

// ErrAuthentication is returned for 401 and 403 responses
var ErrAuthentication = errors.New("authentication failed")

// APIError is a non-2xx response from the mower API
type APIError struct {
	StatusCode int
	Message    string
}

// Error formats the status code and the vendor message
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error %d", e.StatusCode)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrAuthentication) match auth failures
func (e *APIError) Is(target error) bool {
	return target == ErrAuthentication &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Session is the set of mower operations the integration needs
type Session interface {
	GetStatus(ctx context.Context) (map[string]*MowerAttributes, error)
	SetCuttingHeight(ctx context.Context, mowerID string, height int) error
	SetCuttingHeightWorkArea(ctx context.Context, mowerID string, height int, workAreaID int) error
}

// PushSession is a Session that can also stream updates. Listen blocks
// until ctx is cancelled.
type PushSession interface {
	Session
	Listen(ctx context.Context, handler EventHandler) error
}

// EventHandler receives pushed events
type EventHandler func(Event)

// Client implements PushSession over HTTP and websocket
type Client struct {
	baseURL    string
	streamURL  string
	token      string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the REST endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithStreamURL overrides the websocket endpoint
func WithStreamURL(u string) Option {
	return func(c *Client) { c.streamURL = u }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a mower API client
func NewClient(token, apiKey string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		streamURL:  DefaultStreamURL,
		token:      token,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("automowerapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStatus fetches every mower on the account
func (c *Client) GetStatus(ctx context.Context) (map[string]*MowerAttributes, error) {
	var list mowerList
	if err := c.do(ctx, http.MethodGet, "/mowers", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to get mower status: %w", err)
	}
	return decodeMowers(list), nil
}

// SetCuttingHeight sets the mower-wide cutting height (1..9)
func (c *Client) SetCuttingHeight(ctx context.Context, mowerID string, height int) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "settings",
			"attributes": map[string]any{
				"cuttingHeight": height,
			},
		},
	}
	path := fmt.Sprintf("/mowers/%s/settings", mowerID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return err
	}
	c.logger.Info("Sent cutting height",
		zap.String("mower_id", mowerID),
		zap.Int("height", height))
	return nil
}

// SetCuttingHeightWorkArea sets one work area's cutting height (percent)
func (c *Client) SetCuttingHeightWorkArea(ctx context.Context, mowerID string, height int, workAreaID int) error {
	body := map[string]any{
		"data": map[string]any{
			"type": "workArea",
			"id":   workAreaID,
			"attributes": map[string]any{
				"cuttingHeight": height,
			},
		},
	}
	path := fmt.Sprintf("/mowers/%s/workAreas/%d", mowerID, workAreaID)
	if err := c.do(ctx, http.MethodPatch, path, body, nil); err != nil {
		return err
	}
	c.logger.Info("Sent work area cutting height",
		zap.String("mower_id", mowerID),
		zap.Int("work_area_id", workAreaID),
		zap.Int("height", height))
	return nil
}

// Listen streams pushed events until ctx is cancelled, reconnecting on loss
func (c *Client) Listen(ctx context.Context, handler EventHandler) error {
	s := NewStream(c.streamURL, c.token, c.logger)
	return s.Run(ctx, handler)
}

type errorDocument struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Authorization-Provider", "husqvarna")
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", contentType)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var doc errorDocument
	if err := json.Unmarshal(data, &doc); err == nil && len(doc.Errors) > 0 {
		e := doc.Errors[0]
		if e.Detail != "" {
			return e.Detail
		}
		return e.Title
	}
	return strings.TrimSpace(string(data))
}
