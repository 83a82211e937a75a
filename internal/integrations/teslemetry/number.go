package teslemetry

import (
	"context"
	"fmt"
	"strconv"

	"integrationhub/internal/coordinator"
	"integrationhub/internal/entity"
	"integrationhub/internal/fleetapi"
)

// NumberEntityDescription describes a number backed by one flattened key
type NumberEntityDescription struct {
	entity.NumberDescription

	Name     string
	SetValue func(ctx context.Context, api fleetapi.API, target string, value int) error
}

// VehicleNumberTypes are created for vehicles whose data has the key
var VehicleNumberTypes = []NumberEntityDescription{
	{
		NumberDescription: entity.NumberDescription{
			Key:            "charge_state_charge_limit_soc",
			TranslationKey: "charge_state_charge_limit_soc",
			MinValue:       50,
			MaxValue:       100,
			Unit:           "%",
		},
		Name: "Charge limit",
		SetValue: func(ctx context.Context, api fleetapi.API, vin string, value int) error {
			return api.SetChargeLimit(ctx, vin, value)
		},
	},
}

// EnergyInfoNumberTypes are created for energy sites whose site info has the key
var EnergyInfoNumberTypes = []NumberEntityDescription{
	{
		NumberDescription: entity.NumberDescription{
			Key:            "backup_reserve_percent",
			TranslationKey: "backup_reserve_percent",
			MinValue:       0,
			MaxValue:       100,
			Unit:           "%",
		},
		Name: "Backup reserve",
		SetValue: func(ctx context.Context, api fleetapi.API, siteID string, value int) error {
			id, err := strconv.ParseInt(siteID, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid energy site id %q: %w", siteID, err)
			}
			return api.SetBackupReserve(ctx, id, value)
		},
	},
}

// NumberEntity is a number reading a key of a coordinator's flattened data.
// target is the VIN or energy site id the command is sent to.
type NumberEntity struct {
	api         fleetapi.API
	coordinator *coordinator.Coordinator[Values]
	description NumberEntityDescription
	target      string
	deviceName  string
}

func newNumberEntity(api fleetapi.API, c *coordinator.Coordinator[Values], d NumberEntityDescription, target, deviceName string) *NumberEntity {
	return &NumberEntity{
		api:         api,
		coordinator: c,
		description: d,
		target:      target,
		deviceName:  deviceName,
	}
}

// UniqueID is "<target>-<key>"
func (e *NumberEntity) UniqueID() string {
	return e.target + "-" + e.description.Key
}

// DeviceName returns the vehicle or energy site name
func (e *NumberEntity) DeviceName() string {
	return e.deviceName
}

// Name returns the entity name
func (e *NumberEntity) Name() string {
	return e.description.Name
}

// Description returns the number description
func (e *NumberEntity) Description() entity.NumberDescription {
	return e.description.NumberDescription
}

// Value reads the key from the coordinator data
func (e *NumberEntity) Value() (float64, bool) {
	return toFloat(e.coordinator.Data()[e.description.Key])
}

// Available reports whether the last refresh succeeded and the key is present
func (e *NumberEntity) Available() bool {
	if !e.coordinator.LastUpdateSuccess() {
		return false
	}
	_, ok := e.Value()
	return ok
}

// SetValue sends the command and stores the new value without polling
func (e *NumberEntity) SetValue(ctx context.Context, value float64) error {
	if err := e.description.SetValue(ctx, e.api, e.target, int(value)); err != nil {
		return &entity.OperationError{
			Message: fmt.Sprintf("Command failed: %v", err),
			Err:     err,
		}
	}

	current := e.coordinator.Data()
	updated := make(Values, len(current))
	for k, v := range current {
		updated[k] = v
	}
	updated[e.description.Key] = float64(int(value))
	e.coordinator.SetData(updated)
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
