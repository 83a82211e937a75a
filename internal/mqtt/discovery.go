package mqtt

import (
	"strings"

	"integrationhub/internal/entity"
)

// HassAutoconfig is the MQTT discovery payload of one number entity
type HassAutoconfig struct {
	DeviceClass       string               `json:"dev_cla,omitempty"`
	UnitOfMeasurement string               `json:"unit_of_meas,omitempty"`
	Name              string               `json:"name"`
	StatusTopic       string               `json:"stat_t"`
	CommandTopic      string               `json:"cmd_t,omitempty"`
	Availability      []HassAvailability   `json:"avty"`
	AvailabilityMode  string               `json:"avty_mode"`
	UniqueID          string               `json:"uniq_id"`
	EntityCategory    string               `json:"ent_cat,omitempty"`
	Device            HassAutoconfigDevice `json:"dev"`

	// For number
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

type HassAvailability struct {
	Topic string `json:"t"`
}

type HassAutoconfigDevice struct {
	IDs  string `json:"ids"`
	Name string `json:"name"`
}

// autoconfigFor builds the discovery payload for a loaded number
func (b *Bridge) autoconfigFor(st entity.State) HassAutoconfig {
	return HassAutoconfig{
		UnitOfMeasurement: st.Unit,
		Name:              strings.TrimPrefix(st.Name, st.DeviceName+" "),
		StatusTopic:       b.stateTopic(st.EntityID),
		CommandTopic:      b.commandTopic(st.EntityID),
		Availability: []HassAvailability{
			{Topic: b.statusTopic()},
			{Topic: b.availabilityTopic(st.EntityID)},
		},
		AvailabilityMode: "all",
		UniqueID:         b.nodeID() + "_" + st.UniqueID,
		EntityCategory:   string(st.Category),
		Device: HassAutoconfigDevice{
			IDs:  b.nodeID() + "_" + entity.Slugify(st.DeviceName),
			Name: st.DeviceName,
		},
		Min:  st.Min,
		Max:  st.Max,
		Step: st.Step,
	}
}
