package teslemetry

import (
	"context"
	"errors"

	"integrationhub/internal/configentry"
	"integrationhub/internal/diagnostics"
)

// VehicleRedact lists vehicle keys hidden from diagnostics
var VehicleRedact = []string{
	"id",
	"user_id",
	"vehicle_id",
	"vin",
	"tokens",
	"id_s",
	"drive_state_active_route_latitude",
	"drive_state_active_route_longitude",
	"drive_state_latitude",
	"drive_state_longitude",
	"drive_state_native_latitude",
	"drive_state_native_longitude",
}

// EnergyRedact lists energy site keys hidden from diagnostics
var EnergyRedact = []string{"vin"}

// Diagnostics returns the latest vehicle and energy live data, redacted
func (i *Integration) Diagnostics(ctx context.Context, entry *configentry.Entry) (map[string]any, error) {
	rd, ok := entry.RuntimeData().(*RuntimeData)
	if !ok {
		return nil, errors.New("entry is not loaded")
	}

	vehicles := make([]any, 0, len(rd.Vehicles))
	for _, v := range rd.Vehicles {
		vehicles = append(vehicles, v.Coordinator.Data())
	}
	energySites := make([]any, 0, len(rd.EnergySites))
	for _, s := range rd.EnergySites {
		energySites = append(energySites, s.LiveCoordinator.Data())
	}

	return map[string]any{
		"vehicles":    diagnostics.Redact(vehicles, VehicleRedact),
		"energysites": diagnostics.Redact(energySites, EnergyRedact),
	}, nil
}
