// Package teslemetry integrates vehicles and energy sites through the
// Teslemetry fleet API proxy.
package teslemetry

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"integrationhub/internal/clock"
	"integrationhub/internal/configentry"
	"integrationhub/internal/coordinator"
	"integrationhub/internal/entity"
	"integrationhub/internal/fleetapi"
	"integrationhub/pkg/integration"

	"go.uber.org/zap"
)

// Domain is the integration's domain and entity platform name
const Domain = "teslemetry"

// Config entry keys
const (
	ConfKeyToken   = "access_token"
	ConfKeyBaseURL = "base_url"
)

// APIFactory builds the fleet API client for a config entry
type APIFactory func(entry *configentry.Entry, logger *zap.Logger) (fleetapi.API, error)

// NewRESTAPI creates the HTTP client from the entry's token
func NewRESTAPI(entry *configentry.Entry, logger *zap.Logger) (fleetapi.API, error) {
	token := entry.String(ConfKeyToken)
	if token == "" {
		return nil, fmt.Errorf("%w: no access token configured", configentry.ErrAuthFailed)
	}
	var opts []fleetapi.Option
	if u := entry.String(ConfKeyBaseURL); u != "" {
		opts = append(opts, fleetapi.WithBaseURL(u))
	}
	return fleetapi.NewClient(token, logger, opts...), nil
}

// VehicleData is the runtime state of one vehicle
type VehicleData struct {
	VIN         string
	DisplayName string
	Coordinator *coordinator.Coordinator[Values]
}

// EnergySiteData is the runtime state of one energy site
type EnergySiteData struct {
	ID              int64
	Name            string
	LiveCoordinator *coordinator.Coordinator[Values]
	InfoCoordinator *coordinator.Coordinator[Values]
}

// RuntimeData is stored on a loaded config entry
type RuntimeData struct {
	Vehicles    []VehicleData
	EnergySites []EnergySiteData
	EntityIDs   []string

	removeListeners []func()
}

func (d *RuntimeData) coordinators() []*coordinator.Coordinator[Values] {
	var out []*coordinator.Coordinator[Values]
	for _, v := range d.Vehicles {
		out = append(out, v.Coordinator)
	}
	for _, s := range d.EnergySites {
		out = append(out, s.LiveCoordinator, s.InfoCoordinator)
	}
	return out
}

func (d *RuntimeData) shutdown() {
	for _, remove := range d.removeListeners {
		remove()
	}
	for _, c := range d.coordinators() {
		c.Shutdown()
	}
}

// Integration sets up Teslemetry config entries
type Integration struct {
	logger   *zap.Logger
	clock    clock.Clock
	entities *entity.Registry
	numbers  *entity.NumberPlatform
	newAPI   APIFactory
}

// New creates the integration. newAPI defaults to NewRESTAPI.
func New(ctx *integration.Context, newAPI APIFactory) *Integration {
	if newAPI == nil {
		newAPI = NewRESTAPI
	}
	return &Integration{
		logger:   ctx.Logger.Named(Domain),
		clock:    ctx.Clock,
		entities: ctx.Entities,
		numbers:  ctx.Numbers,
		newAPI:   newAPI,
	}
}

func init() {
	integration.Register(integration.Info{
		Domain:      Domain,
		Description: "Vehicles and energy sites via Teslemetry",
		Priority:    integration.PriorityDefault,
		Factory: func(ctx *integration.Context) (integration.Integration, error) {
			return New(ctx, nil), nil
		},
	})
}

// Domain returns the integration domain
func (i *Integration) Domain() string {
	return Domain
}

// SetupEntry lists the account's products and starts one coordinator per
// vehicle and two per energy site
func (i *Integration) SetupEntry(ctx context.Context, entry *configentry.Entry) error {
	logger := i.logger.With(zap.String("entry_id", entry.EntryID), zap.String("title", entry.Title))

	api, err := i.newAPI(entry, logger)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	products, err := api.Products(ctx)
	if err != nil {
		if errors.Is(err, fleetapi.ErrInvalidToken) || errors.Is(err, fleetapi.ErrSubscriptionRequired) {
			return fmt.Errorf("%w: %w", configentry.ErrAuthFailed, err)
		}
		return fmt.Errorf("%w: failed to list products: %w", configentry.ErrNotReady, err)
	}

	rd := &RuntimeData{}
	var numbers []entity.Number

	for _, p := range products {
		switch {
		case p.IsVehicle():
			name := p.DisplayName
			if name == "" {
				name = p.VIN
			}
			rd.Vehicles = append(rd.Vehicles, VehicleData{
				VIN:         p.VIN,
				DisplayName: name,
				Coordinator: NewVehicleCoordinator(api, p.VIN, i.clock, logger),
			})
		case p.IsEnergySite():
			name := p.SiteName
			if name == "" {
				name = "Energy Site"
			}
			rd.EnergySites = append(rd.EnergySites, EnergySiteData{
				ID:              p.EnergySiteID,
				Name:            name,
				LiveCoordinator: NewEnergyLiveCoordinator(api, p.EnergySiteID, i.clock, logger),
				InfoCoordinator: NewEnergyInfoCoordinator(api, p.EnergySiteID, i.clock, logger),
			})
		default:
			logger.Debug("Skipping unsupported product", zap.Int64("id", p.ID))
		}
	}

	for _, c := range rd.coordinators() {
		if err := c.FirstRefresh(ctx); err != nil {
			rd.shutdown()
			return err
		}
	}

	for _, v := range rd.Vehicles {
		for _, d := range VehicleNumberTypes {
			if _, ok := v.Coordinator.Data()[d.Key]; ok {
				numbers = append(numbers, newNumberEntity(api, v.Coordinator, d, v.VIN, v.DisplayName))
			}
		}
	}
	for _, s := range rd.EnergySites {
		siteID := strconv.FormatInt(s.ID, 10)
		for _, d := range EnergyInfoNumberTypes {
			if _, ok := s.InfoCoordinator.Data()[d.Key]; ok {
				numbers = append(numbers, newNumberEntity(api, s.InfoCoordinator, d, siteID, s.Name))
			}
		}
	}

	ids, err := i.numbers.Add(entry.EntryID, Domain, numbers)
	if err != nil {
		rd.shutdown()
		i.numbers.RemoveConfigEntry(entry.EntryID)
		return fmt.Errorf("failed to set up number entities: %w", err)
	}
	rd.EntityIDs = ids

	for _, c := range rd.coordinators() {
		rd.removeListeners = append(rd.removeListeners, c.AddListener(func() {
			i.numbers.RefreshStates(entry.EntryID)
		}))
	}

	entry.SetRuntimeData(rd)
	logger.Info("Teslemetry entry set up",
		zap.Int("vehicles", len(rd.Vehicles)),
		zap.Int("energy_sites", len(rd.EnergySites)),
		zap.Int("entities", len(ids)))
	return nil
}

// UnloadEntry stops polling and unloads the entry's entities
func (i *Integration) UnloadEntry(ctx context.Context, entry *configentry.Entry) error {
	rd, ok := entry.RuntimeData().(*RuntimeData)
	if !ok {
		return nil
	}
	rd.shutdown()
	removed := i.numbers.RemoveConfigEntry(entry.EntryID)

	i.logger.Info("Teslemetry entry unloaded",
		zap.String("entry_id", entry.EntryID),
		zap.Int("entities", removed))
	return nil
}
