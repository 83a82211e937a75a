package teslemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"
	"integrationhub/internal/coordinator"
	"integrationhub/internal/fleetapi"

	"go.uber.org/zap"
)

const (
	VehicleInterval    = 30 * time.Second
	EnergyLiveInterval = 30 * time.Second
	EnergyInfoInterval = 30 * time.Second
)

// StateOffline is stored in vehicle data when the vehicle does not answer
const StateOffline = "offline"

// Values is the flattened response of one endpoint
type Values = map[string]any

// translateError maps fleet errors onto coordinator outcomes
func translateError(err error) error {
	switch {
	case errors.Is(err, fleetapi.ErrInvalidToken), errors.Is(err, fleetapi.ErrSubscriptionRequired):
		return fmt.Errorf("%w: %w", configentry.ErrAuthFailed, err)
	default:
		return fmt.Errorf("%w: %w", coordinator.ErrUpdateFailed, err)
	}
}

// NewVehicleCoordinator polls vehicle_data. An offline vehicle keeps its
// last data with state set to offline.
func NewVehicleCoordinator(api fleetapi.API, vin string, clk clock.Clock, logger *zap.Logger) *coordinator.Coordinator[Values] {
	update := func(ctx context.Context, previous Values) (Values, error) {
		data, err := api.VehicleData(ctx, vin)
		if err != nil {
			if errors.Is(err, fleetapi.ErrVehicleOffline) {
				out := make(Values, len(previous)+1)
				for k, v := range previous {
					out[k] = v
				}
				out["state"] = StateOffline
				return out, nil
			}
			return nil, translateError(err)
		}
		return fleetapi.Flatten(data), nil
	}
	return coordinator.New("teslemetry vehicle "+vin, VehicleInterval, update, clk, logger)
}

// NewEnergyLiveCoordinator polls an energy site's live_status
func NewEnergyLiveCoordinator(api fleetapi.API, siteID int64, clk clock.Clock, logger *zap.Logger) *coordinator.Coordinator[Values] {
	update := func(ctx context.Context, _ Values) (Values, error) {
		data, err := api.LiveStatus(ctx, siteID)
		if err != nil {
			return nil, translateError(err)
		}
		return fleetapi.Flatten(data), nil
	}
	return coordinator.New(fmt.Sprintf("teslemetry energy live %d", siteID), EnergyLiveInterval, update, clk, logger)
}

// NewEnergyInfoCoordinator polls an energy site's site_info
func NewEnergyInfoCoordinator(api fleetapi.API, siteID int64, clk clock.Clock, logger *zap.Logger) *coordinator.Coordinator[Values] {
	update := func(ctx context.Context, _ Values) (Values, error) {
		data, err := api.SiteInfo(ctx, siteID)
		if err != nil {
			return nil, translateError(err)
		}
		return fleetapi.Flatten(data), nil
	}
	return coordinator.New(fmt.Sprintf("teslemetry energy info %d", siteID), EnergyInfoInterval, update, clk, logger)
}
