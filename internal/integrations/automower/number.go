package automower

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"integrationhub/internal/automowerapi"
	"integrationhub/internal/clock"
	"integrationhub/internal/entity"

	"go.uber.org/zap"
)

// commandErrorPrefix is shown when the vendor rejects a command
const commandErrorPrefix = "Command couldn't be sent to the command queue"

const workAreaKey = "cutting_height_work_area"

var translations = map[string]string{
	"cutting_height":           "Cutting height",
	"my_lawn_cutting_height":   "My lawn cutting height",
	"work_area_cutting_height": "{work_area} cutting height",
}

func translateName(key string, placeholders map[string]string) string {
	name, ok := translations[key]
	if !ok {
		return key
	}
	pairs := make([]string, 0, len(placeholders)*2)
	for k, v := range placeholders {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(name)
}

func workAreaTranslationKey(workAreaID int) string {
	if workAreaID == 0 {
		return "my_lawn_cutting_height"
	}
	return "work_area_cutting_height"
}

// NumberEntityDescription describes a mower-wide number
type NumberEntityDescription struct {
	entity.NumberDescription

	Exists   func(m *automowerapi.MowerAttributes) bool
	Value    func(m *automowerapi.MowerAttributes) int
	SetValue func(ctx context.Context, session automowerapi.Session, mowerID string, value float64) error
}

// WorkAreaNumberEntityDescription describes a number that exists once per work area
type WorkAreaNumberEntityDescription struct {
	entity.NumberDescription

	TranslationKeyFor func(workAreaID int) string
	Value             func(wa automowerapi.WorkArea) int
	SetValue          func(ctx context.Context, c *Coordinator, mowerID string, value float64, workAreaID int) error
}

// NumberTypes are created for every mower where Exists reports true
var NumberTypes = []NumberEntityDescription{
	{
		NumberDescription: entity.NumberDescription{
			Key:               "cutting_height",
			TranslationKey:    "cutting_height",
			Category:          entity.CategoryConfig,
			DisabledByDefault: true,
			MinValue:          1,
			MaxValue:          9,
		},
		Exists: func(m *automowerapi.MowerAttributes) bool { return m.CuttingHeight != nil },
		Value:  func(m *automowerapi.MowerAttributes) int { return *m.CuttingHeight },
		SetValue: func(ctx context.Context, session automowerapi.Session, mowerID string, value float64) error {
			return session.SetCuttingHeight(ctx, mowerID, int(value))
		},
	},
}

// WorkAreaNumberTypes are created for every work area of mowers that support them
var WorkAreaNumberTypes = []WorkAreaNumberEntityDescription{
	{
		NumberDescription: entity.NumberDescription{
			Key:      workAreaKey,
			Category: entity.CategoryConfig,
			Unit:     "%",
		},
		TranslationKeyFor: workAreaTranslationKey,
		Value:             func(wa automowerapi.WorkArea) int { return wa.CuttingHeight },
		SetValue:          setWorkAreaCuttingHeight,
	},
}

// setWorkAreaCuttingHeight sends the command, waits for the vendor to apply
// it and then polls. The vendor error is returned unwrapped.
func setWorkAreaCuttingHeight(ctx context.Context, c *Coordinator, mowerID string, value float64, workAreaID int) error {
	if err := c.API().SetCuttingHeightWorkArea(ctx, mowerID, int(value), workAreaID); err != nil {
		return err
	}
	if err := clock.SleepContext(ctx, c.clock, c.WorkAreaRefreshDelay()); err != nil {
		return err
	}
	c.RequestRefresh(ctx)
	return nil
}

// commandError wraps a vendor rejection for the caller. Any other error is
// returned unchanged.
func commandError(err error) error {
	var apiErr *automowerapi.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return &entity.OperationError{
		Message: fmt.Sprintf("%s: %v", commandErrorPrefix, err),
		Err:     err,
	}
}

var errorStates = map[string]struct{}{
	"ERROR":             {},
	"FATAL_ERROR":       {},
	"ERROR_AT_POWER_UP": {},
}

// mowerEntity is the shared part of every mower entity
type mowerEntity struct {
	mowerID     string
	coordinator *Coordinator
}

func (e mowerEntity) attributes() *automowerapi.MowerAttributes {
	m, _ := e.coordinator.Mower(e.mowerID)
	return m
}

// DeviceName is the mower name, or its id before data arrives
func (e mowerEntity) DeviceName() string {
	if m := e.attributes(); m != nil && m.Name != "" {
		return m.Name
	}
	return e.mowerID
}

// Available reports whether the mower is connected and not in an error state
func (e mowerEntity) Available() bool {
	m := e.attributes()
	if m == nil || !e.coordinator.LastUpdateSuccess() || !m.Connected {
		return false
	}
	_, failed := errorStates[m.Mower.State]
	return !failed
}

// NumberEntity is a mower-wide number
type NumberEntity struct {
	mowerEntity
	description NumberEntityDescription
}

// NewNumberEntity creates the entity for one mower and description
func NewNumberEntity(mowerID string, c *Coordinator, d NumberEntityDescription) *NumberEntity {
	return &NumberEntity{
		mowerEntity: mowerEntity{mowerID: mowerID, coordinator: c},
		description: d,
	}
}

// UniqueID is "<mower id>_<key>"
func (e *NumberEntity) UniqueID() string {
	return e.mowerID + "_" + e.description.Key
}

// Name returns the translated entity name
func (e *NumberEntity) Name() string {
	return translateName(e.description.TranslationKey, nil)
}

// Description returns the number description
func (e *NumberEntity) Description() entity.NumberDescription {
	return e.description.NumberDescription
}

// Value reads the setting from the mower attributes
func (e *NumberEntity) Value() (float64, bool) {
	m := e.attributes()
	if m == nil || (e.description.Exists != nil && !e.description.Exists(m)) {
		return 0, false
	}
	return float64(e.description.Value(m)), true
}

// SetValue sends the setting to the vendor
func (e *NumberEntity) SetValue(ctx context.Context, value float64) error {
	if err := e.description.SetValue(ctx, e.coordinator.API(), e.mowerID, value); err != nil {
		return commandError(err)
	}
	return nil
}

// WorkAreaNumberEntity is a number bound to one work area of a mower
type WorkAreaNumberEntity struct {
	mowerEntity
	description WorkAreaNumberEntityDescription
	workAreaID  int
	areaName    string
}

// NewWorkAreaNumberEntity creates the entity for one work area and description
func NewWorkAreaNumberEntity(mowerID string, c *Coordinator, d WorkAreaNumberEntityDescription, workAreaID int) *WorkAreaNumberEntity {
	e := &WorkAreaNumberEntity{
		mowerEntity: mowerEntity{mowerID: mowerID, coordinator: c},
		description: d,
		workAreaID:  workAreaID,
	}
	if wa, ok := e.workArea(); ok {
		e.areaName = wa.Name
	}
	return e
}

func (e *WorkAreaNumberEntity) workArea() (automowerapi.WorkArea, bool) {
	m := e.attributes()
	if m == nil || m.WorkAreas == nil {
		return automowerapi.WorkArea{}, false
	}
	wa, ok := m.WorkAreas[e.workAreaID]
	return wa, ok
}

// WorkAreaID returns the work area the entity controls
func (e *WorkAreaNumberEntity) WorkAreaID() int {
	return e.workAreaID
}

// UniqueID is "<mower id>_<work area id>_<key>"
func (e *WorkAreaNumberEntity) UniqueID() string {
	return workAreaUniqueID(e.mowerID, e.workAreaID, e.description.Key)
}

// Name returns the translated name with the work area filled in
func (e *WorkAreaNumberEntity) Name() string {
	return translateName(e.description.TranslationKeyFor(e.workAreaID), map[string]string{
		"work_area": e.areaName,
	})
}

// Description returns the number description with the work area translation key
func (e *WorkAreaNumberEntity) Description() entity.NumberDescription {
	d := e.description.NumberDescription
	d.TranslationKey = e.description.TranslationKeyFor(e.workAreaID)
	return d
}

// Value reads the setting from the work area
func (e *WorkAreaNumberEntity) Value() (float64, bool) {
	wa, ok := e.workArea()
	if !ok {
		return 0, false
	}
	return float64(e.description.Value(wa)), true
}

// Available is false once the work area disappears from the data
func (e *WorkAreaNumberEntity) Available() bool {
	if _, ok := e.workArea(); !ok {
		return false
	}
	return e.mowerEntity.Available()
}

// SetValue sends the work area setting and refreshes after the configured delay
func (e *WorkAreaNumberEntity) SetValue(ctx context.Context, value float64) error {
	if err := e.description.SetValue(ctx, e.coordinator, e.mowerID, value, e.workAreaID); err != nil {
		return commandError(err)
	}
	return nil
}

func workAreaUniqueID(mowerID string, workAreaID int, key string) string {
	return mowerID + "_" + strconv.Itoa(workAreaID) + "_" + key
}

// entityRegistry is the part of the entity registry that reconciliation needs
type entityRegistry interface {
	EntriesForConfigEntry(configEntryID string) []entity.Entry
	Remove(entityID string) error
}

// numberAdder registers and loads number entities
type numberAdder interface {
	Add(configEntryID, platform string, numbers []entity.Number) ([]string, error)
}

// buildNumbers creates the entities for the current data and removes
// registry entries of work areas that no longer exist.
func buildNumbers(configEntryID string, c *Coordinator, registry entityRegistry, logger *zap.Logger) []entity.Number {
	data := c.Data()
	mowerIDs := make([]string, 0, len(data))
	for id := range data {
		mowerIDs = append(mowerIDs, id)
	}
	sort.Strings(mowerIDs)

	var numbers []entity.Number
	for _, mowerID := range mowerIDs {
		m := data[mowerID]
		if !m.Capabilities.WorkAreas {
			continue
		}
		if m.WorkAreas != nil {
			for _, d := range WorkAreaNumberTypes {
				for _, workAreaID := range m.WorkAreaIDs() {
					numbers = append(numbers, NewWorkAreaNumberEntity(mowerID, c, d, workAreaID))
				}
			}
		}
		removeStaleWorkAreaEntities(registry, configEntryID, mowerID, m.WorkAreas, logger)
	}

	for _, mowerID := range mowerIDs {
		for _, d := range NumberTypes {
			if d.Exists(data[mowerID]) {
				numbers = append(numbers, NewNumberEntity(mowerID, c, d))
			}
		}
	}
	return numbers
}

// setupNumbers registers the entry's number entities with the platform
func setupNumbers(configEntryID string, c *Coordinator, registry entityRegistry, platform numberAdder, logger *zap.Logger) ([]string, error) {
	numbers := buildNumbers(configEntryID, c, registry, logger)
	return platform.Add(configEntryID, Domain, numbers)
}

// removeStaleWorkAreaEntities deletes the mower's work area entities whose
// work area is not in workAreas. Nothing is removed when workAreas is nil.
func removeStaleWorkAreaEntities(registry entityRegistry, configEntryID, mowerID string, workAreas map[int]automowerapi.WorkArea, logger *zap.Logger) int {
	if workAreas == nil {
		return 0
	}

	active := make(map[string]struct{}, len(workAreas))
	for workAreaID := range workAreas {
		active[workAreaUniqueID(mowerID, workAreaID, workAreaKey)] = struct{}{}
	}

	removed := 0
	for _, e := range registry.EntriesForConfigEntry(configEntryID) {
		if !strings.HasPrefix(e.UniqueID, mowerID+"_") || !strings.HasSuffix(e.UniqueID, workAreaKey) {
			continue
		}
		if _, ok := active[e.UniqueID]; ok {
			continue
		}
		if err := registry.Remove(e.EntityID); err != nil {
			logger.Warn("Failed to remove stale work area entity",
				zap.String("entity_id", e.EntityID),
				zap.Error(err))
			continue
		}
		logger.Info("Removed entity of deleted work area",
			zap.String("entity_id", e.EntityID),
			zap.String("unique_id", e.UniqueID))
		removed++
	}
	return removed
}
