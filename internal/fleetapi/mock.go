package fleetapi

import (
	"context"
	"sync"
)

// CommandCall records a command sent through MockAPI
type CommandCall struct {
	Name    string
	Target  string
	SiteID  int64
	Percent int
}

// MockAPI implements API for testing. Responses are returned as copies.
type MockAPI struct {
	mu sync.Mutex

	products    []Product
	vehicleData map[string]map[string]any
	liveStatus  map[int64]map[string]any
	siteInfo    map[int64]map[string]any

	productsErr    error
	vehicleDataErr error
	liveStatusErr  error
	siteInfoErr    error
	commandErr     error

	calls    map[string]int
	commands []CommandCall
}

// NewMockAPI creates an empty mock
func NewMockAPI() *MockAPI {
	return &MockAPI{
		vehicleData: make(map[string]map[string]any),
		liveStatus:  make(map[int64]map[string]any),
		siteInfo:    make(map[int64]map[string]any),
		calls:       make(map[string]int),
	}
}

// AddVehicle adds a vehicle product and its vehicle_data response
func (m *MockAPI) AddVehicle(p Product, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
	m.vehicleData[p.VIN] = data
}

// AddEnergySite adds an energy product and its live_status and site_info responses
func (m *MockAPI) AddEnergySite(p Product, live, info map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, p)
	m.liveStatus[p.EnergySiteID] = live
	m.siteInfo[p.EnergySiteID] = info
}

// SetVehicleData replaces a vehicle's response
func (m *MockAPI) SetVehicleData(vin string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicleData[vin] = data
}

// SetProductsErr and the setters below set the error a call returns; nil clears it
func (m *MockAPI) SetProductsErr(err error) { m.setErr(&m.productsErr, err) }

// SetVehicleDataErr sets the error returned by VehicleData
func (m *MockAPI) SetVehicleDataErr(err error) { m.setErr(&m.vehicleDataErr, err) }

// SetLiveStatusErr sets the error returned by LiveStatus
func (m *MockAPI) SetLiveStatusErr(err error) { m.setErr(&m.liveStatusErr, err) }

// SetSiteInfoErr sets the error returned by SiteInfo
func (m *MockAPI) SetSiteInfoErr(err error) { m.setErr(&m.siteInfoErr, err) }

// SetCommandErr sets the error returned by commands
func (m *MockAPI) SetCommandErr(err error) { m.setErr(&m.commandErr, err) }

func (m *MockAPI) setErr(field *error, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field = err
}

// Calls returns how often a method was called
func (m *MockAPI) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Commands returns the recorded commands
func (m *MockAPI) Commands() []CommandCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CommandCall(nil), m.commands...)
}

// Products returns the configured products
func (m *MockAPI) Products(ctx context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Products"]++
	if m.productsErr != nil {
		return nil, m.productsErr
	}
	return append([]Product(nil), m.products...), nil
}

// VehicleData returns a copy of the vehicle's data
func (m *MockAPI) VehicleData(ctx context.Context, vin string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["VehicleData"]++
	if m.vehicleDataErr != nil {
		return nil, m.vehicleDataErr
	}
	return copyMap(m.vehicleData[vin]), nil
}

// LiveStatus returns a copy of the site's live status
func (m *MockAPI) LiveStatus(ctx context.Context, siteID int64) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["LiveStatus"]++
	if m.liveStatusErr != nil {
		return nil, m.liveStatusErr
	}
	return copyMap(m.liveStatus[siteID]), nil
}

// SiteInfo returns a copy of the site's info
func (m *MockAPI) SiteInfo(ctx context.Context, siteID int64) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["SiteInfo"]++
	if m.siteInfoErr != nil {
		return nil, m.siteInfoErr
	}
	return copyMap(m.siteInfo[siteID]), nil
}

// SetChargeLimit records the command
func (m *MockAPI) SetChargeLimit(ctx context.Context, vin string, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, CommandCall{Name: "set_charge_limit", Target: vin, Percent: percent})
	return m.commandErr
}

// SetBackupReserve records the command
func (m *MockAPI) SetBackupReserve(ctx context.Context, siteID int64, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, CommandCall{Name: "backup", SiteID: siteID, Percent: percent})
	return m.commandErr
}

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = copyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
