package entity

import "context"

// NumberDomain is the entity domain of adjustable numeric controls
const NumberDomain = "number"

// Category classifies entities that are not primary controls
type Category string

const (
	CategoryNone       Category = ""
	CategoryConfig     Category = "config"
	CategoryDiagnostic Category = "diagnostic"
)

// NumberDescription is the static part of a number entity
type NumberDescription struct {
	Key               string
	TranslationKey    string
	Category          Category
	DisabledByDefault bool
	MinValue          float64
	MaxValue          float64
	Step              float64
	Unit              string
}

// Range returns the allowed interval, falling back to 0..100 when unset
func (d NumberDescription) Range() (float64, float64) {
	if d.MinValue == 0 && d.MaxValue == 0 {
		return 0, 100
	}
	return d.MinValue, d.MaxValue
}

// StepOrDefault returns Step, or 1 when unset
func (d NumberDescription) StepOrDefault() float64 {
	if d.Step <= 0 {
		return 1
	}
	return d.Step
}

// Number is a loaded adjustable numeric control
type Number interface {
	UniqueID() string
	DeviceName() string
	Name() string
	Description() NumberDescription

	// Value returns the current value; ok is false when it is unknown
	Value() (value float64, ok bool)
	Available() bool

	SetValue(ctx context.Context, value float64) error
}
