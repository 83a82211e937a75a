// Package fleetapi is a client for the vehicle and energy fleet API as
// proxied by Teslemetry.
package fleetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Teslemetry endpoint
const DefaultBaseURL = "https://api.teslemetry.com"

// VehicleEndpoints are requested from vehicle_data
var VehicleEndpoints = []string{
	"charge_state",
	"climate_state",
	"closures_state",
	"drive_state",
	"gui_settings",
	"location_data",
	"vehicle_config",
	"vehicle_state",
}

// Product is a vehicle or energy site on the account
type Product struct {
	ID           int64  `json:"id,omitempty"`
	VehicleID    int64  `json:"vehicle_id,omitempty"`
	VIN          string `json:"vin,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	State        string `json:"state,omitempty"`
	EnergySiteID int64  `json:"energy_site_id,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
}

// IsVehicle reports whether the product is a vehicle
func (p Product) IsVehicle() bool {
	return p.VIN != ""
}

// IsEnergySite reports whether the product is an energy site
func (p Product) IsEnergySite() bool {
	return p.EnergySiteID != 0
}

// API is the set of fleet calls the integration uses
type API interface {
	Products(ctx context.Context) ([]Product, error)
	VehicleData(ctx context.Context, vin string) (map[string]any, error)
	LiveStatus(ctx context.Context, siteID int64) (map[string]any, error)
	SiteInfo(ctx context.Context, siteID int64) (map[string]any, error)
	SetChargeLimit(ctx context.Context, vin string, percent int) error
	SetBackupReserve(ctx context.Context, siteID int64, percent int) error
}

// Client implements API over HTTP
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the API endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a fleet API client
func NewClient(token string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.Named("fleetapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Products lists every vehicle and energy site
func (c *Client) Products(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, "/api/1/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// VehicleData fetches the nested vehicle state
func (c *Client) VehicleData(ctx context.Context, vin string) (map[string]any, error) {
	q := url.Values{}
	q.Set("endpoints", strings.Join(VehicleEndpoints, ";"))
	path := fmt.Sprintf("/api/1/vehicles/%s/vehicle_data?%s", url.PathEscape(vin), q.Encode())

	var data map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// LiveStatus fetches an energy site's live power flow
func (c *Client) LiveStatus(ctx context.Context, siteID int64) (map[string]any, error) {
	var data map[string]any
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/1/energy_sites/%d/live_status", siteID), nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// SiteInfo fetches an energy site's configuration
func (c *Client) SiteInfo(ctx context.Context, siteID int64) (map[string]any, error) {
	var data map[string]any
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/1/energy_sites/%d/site_info", siteID), nil, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// SetChargeLimit sets the vehicle's charge limit in percent
func (c *Client) SetChargeLimit(ctx context.Context, vin string, percent int) error {
	path := fmt.Sprintf("/api/1/vehicles/%s/command/set_charge_limit", url.PathEscape(vin))
	return c.command(ctx, path, map[string]any{"percent": percent})
}

// SetBackupReserve sets the share of battery kept for outages
func (c *Client) SetBackupReserve(ctx context.Context, siteID int64, percent int) error {
	path := fmt.Sprintf("/api/1/energy_sites/%d/backup", siteID)
	return c.command(ctx, path, map[string]any{"backup_reserve_percent": percent})
}

type commandResult struct {
	Result bool   `json:"result"`
	Reason string `json:"reason"`
}

func (c *Client) command(ctx context.Context, path string, body any) error {
	var res commandResult
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return err
	}
	if !res.Result && res.Reason != "" {
		return NewError(ErrFleet, res.Reason)
	}
	return nil
}

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
	Detail   string          `json:"error_description"`
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
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: ErrFleet, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: ErrFleet, StatusCode: resp.StatusCode, Message: err.Error()}
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Error
		if env.Detail != "" {
			msg = env.Detail
		}
		if decodeErr != nil {
			msg = strings.TrimSpace(string(data))
		}
		c.logger.Debug("Fleet API request failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", msg))
		return &Error{Kind: kindForStatus(resp.StatusCode, env.Error), StatusCode: resp.StatusCode, Message: msg}
	}

	if decodeErr != nil {
		return &Error{Kind: ErrFleet, StatusCode: resp.StatusCode, Message: "failed to decode response: " + decodeErr.Error()}
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return &Error{Kind: ErrFleet, StatusCode: resp.StatusCode, Message: "failed to decode response: " + err.Error()}
	}
	return nil
}
