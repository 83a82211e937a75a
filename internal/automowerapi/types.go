package automowerapi

import (
	"encoding/json"
	"sort"
)

// MowerAttributes is the decoded state of one mower
type MowerAttributes struct {
	Name          string           `json:"name"`
	Model         string           `json:"model"`
	SerialNumber  int64            `json:"serial_number"`
	Capabilities  Capabilities     `json:"capabilities"`
	Mower         MowerState       `json:"mower"`
	Battery       Battery          `json:"battery"`
	Connected     bool             `json:"connected"`
	CuttingHeight *int             `json:"cutting_height,omitempty"`
	WorkAreas     map[int]WorkArea `json:"work_areas,omitempty"`
}

// Capabilities lists optional mower features
type Capabilities struct {
	Headlights   bool `json:"headlights"`
	WorkAreas    bool `json:"work_areas"`
	Position     bool `json:"position"`
	StayOutZones bool `json:"stay_out_zones"`
}

// MowerState is the operational state reported by the mower
type MowerState struct {
	Mode      string `json:"mode"`
	Activity  string `json:"activity"`
	State     string `json:"state"`
	ErrorCode int    `json:"error_code"`
}

// Battery holds the charge level in percent
type Battery struct {
	Level int `json:"level"`
}

// WorkArea is a named sub-area of a lawn with its own cutting height (percent)
type WorkArea struct {
	Name          string `json:"name"`
	CuttingHeight int    `json:"cutting_height"`
}

// WorkAreaIDs returns the mower's work area ids in ascending order
func (m *MowerAttributes) WorkAreaIDs() []int {
	ids := make([]int, 0, len(m.WorkAreas))
	for id := range m.WorkAreas {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Clone returns a deep copy
func (m *MowerAttributes) Clone() *MowerAttributes {
	if m == nil {
		return nil
	}
	c := *m
	if m.CuttingHeight != nil {
		h := *m.CuttingHeight
		c.CuttingHeight = &h
	}
	if m.WorkAreas != nil {
		c.WorkAreas = make(map[int]WorkArea, len(m.WorkAreas))
		for id, wa := range m.WorkAreas {
			c.WorkAreas[id] = wa
		}
	}
	return &c
}

// IntPtr is a convenience for building attributes in tests and fixtures
func IntPtr(v int) *int {
	return &v
}

// JSON:API wire format

type mowerList struct {
	Data []mowerResource `json:"data"`
}

type mowerResource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes mowerAttributes `json:"attributes"`
}

type mowerAttributes struct {
	System       *systemAttributes     `json:"system,omitempty"`
	Battery      *batteryAttributes    `json:"battery,omitempty"`
	Capabilities *capabilityAttributes `json:"capabilities,omitempty"`
	Mower        *mowerStateAttributes `json:"mower,omitempty"`
	Metadata     *metadataAttributes   `json:"metadata,omitempty"`
	Settings     *settingsAttributes   `json:"settings,omitempty"`
	WorkAreas    []workAreaAttributes  `json:"workAreas,omitempty"`
}

type systemAttributes struct {
	Name         string `json:"name"`
	Model        string `json:"model"`
	SerialNumber int64  `json:"serialNumber"`
}

type batteryAttributes struct {
	BatteryPercent int `json:"batteryPercent"`
}

type capabilityAttributes struct {
	Headlights   bool `json:"headlights"`
	WorkAreas    bool `json:"workAreas"`
	Position     bool `json:"position"`
	StayOutZones bool `json:"stayOutZones"`
}

type mowerStateAttributes struct {
	Mode      string `json:"mode"`
	Activity  string `json:"activity"`
	State     string `json:"state"`
	ErrorCode int    `json:"errorCode"`
}

type metadataAttributes struct {
	Connected       bool  `json:"connected"`
	StatusTimestamp int64 `json:"statusTimestamp"`
}

type settingsAttributes struct {
	CuttingHeight *int `json:"cuttingHeight,omitempty"`
}

type workAreaAttributes struct {
	WorkAreaID    int    `json:"workAreaId"`
	Name          string `json:"name"`
	CuttingHeight int    `json:"cuttingHeight"`
}

// myLawnName is shown for work area 0, which the API returns unnamed
const myLawnName = "my lawn"

// apply merges the present sections of a into m
func (a *mowerAttributes) apply(m *MowerAttributes) {
	if a.System != nil {
		m.Name = a.System.Name
		m.Model = a.System.Model
		m.SerialNumber = a.System.SerialNumber
	}
	if a.Battery != nil {
		m.Battery = Battery{Level: a.Battery.BatteryPercent}
	}
	if a.Capabilities != nil {
		m.Capabilities = Capabilities{
			Headlights:   a.Capabilities.Headlights,
			WorkAreas:    a.Capabilities.WorkAreas,
			Position:     a.Capabilities.Position,
			StayOutZones: a.Capabilities.StayOutZones,
		}
	}
	if a.Mower != nil {
		m.Mower = MowerState{
			Mode:      a.Mower.Mode,
			Activity:  a.Mower.Activity,
			State:     a.Mower.State,
			ErrorCode: a.Mower.ErrorCode,
		}
	}
	if a.Metadata != nil {
		m.Connected = a.Metadata.Connected
	}
	if a.Settings != nil && a.Settings.CuttingHeight != nil {
		h := *a.Settings.CuttingHeight
		m.CuttingHeight = &h
	}
	if a.WorkAreas != nil {
		m.WorkAreas = make(map[int]WorkArea, len(a.WorkAreas))
		for _, wa := range a.WorkAreas {
			name := wa.Name
			if wa.WorkAreaID == 0 && name == "" {
				name = myLawnName
			}
			m.WorkAreas[wa.WorkAreaID] = WorkArea{Name: name, CuttingHeight: wa.CuttingHeight}
		}
	}
}

func decodeMowers(list mowerList) map[string]*MowerAttributes {
	out := make(map[string]*MowerAttributes, len(list.Data))
	for _, res := range list.Data {
		m := &MowerAttributes{}
		res.Attributes.apply(m)
		out[res.ID] = m
	}
	return out
}

// Event is a push message from the websocket stream
type Event struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

const (
	EventStatus   = "status-event"
	EventSettings = "settings-event"
	EventPosition = "position-event"
)

// ApplyEvent returns a copy of data with ev merged in. The second return is
// false for unknown mowers and unhandled event types.
func ApplyEvent(data map[string]*MowerAttributes, ev Event) (map[string]*MowerAttributes, bool, error) {
	current, ok := data[ev.ID]
	if !ok {
		return data, false, nil
	}
	if ev.Type != EventStatus && ev.Type != EventSettings {
		return data, false, nil
	}

	var attrs mowerAttributes
	if err := json.Unmarshal(ev.Attributes, &attrs); err != nil {
		return data, false, err
	}

	updated := current.Clone()
	attrs.apply(updated)

	out := make(map[string]*MowerAttributes, len(data))
	for id, m := range data {
		out[id] = m
	}
	out[ev.ID] = updated
	return out, true, nil
}

// EncodeMowers renders mowers in the GET /mowers wire format, ordered by id
func EncodeMowers(mowers map[string]*MowerAttributes) ([]byte, error) {
	ids := make([]string, 0, len(mowers))
	for id := range mowers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := mowerList{Data: make([]mowerResource, 0, len(ids))}
	for _, id := range ids {
		list.Data = append(list.Data, mowerResource{
			Type:       "mower",
			ID:         id,
			Attributes: encodeAttributes(mowers[id]),
		})
	}
	return json.Marshal(list)
}

func encodeAttributes(m *MowerAttributes) mowerAttributes {
	a := mowerAttributes{
		System:  &systemAttributes{Name: m.Name, Model: m.Model, SerialNumber: m.SerialNumber},
		Battery: &batteryAttributes{BatteryPercent: m.Battery.Level},
		Capabilities: &capabilityAttributes{
			Headlights:   m.Capabilities.Headlights,
			WorkAreas:    m.Capabilities.WorkAreas,
			Position:     m.Capabilities.Position,
			StayOutZones: m.Capabilities.StayOutZones,
		},
		Mower: &mowerStateAttributes{
			Mode:      m.Mower.Mode,
			Activity:  m.Mower.Activity,
			State:     m.Mower.State,
			ErrorCode: m.Mower.ErrorCode,
		},
		Metadata: &metadataAttributes{Connected: m.Connected},
		Settings: &settingsAttributes{CuttingHeight: m.CuttingHeight},
	}
	for _, id := range m.WorkAreaIDs() {
		wa := m.WorkAreas[id]
		name := wa.Name
		if id == 0 && name == myLawnName {
			name = ""
		}
		a.WorkAreas = append(a.WorkAreas, workAreaAttributes{
			WorkAreaID:    id,
			Name:          name,
			CuttingHeight: wa.CuttingHeight,
		})
	}
	return a
}

// SettingsEvent builds the event the cloud pushes after a cutting height change
func SettingsEvent(mowerID string, cuttingHeight int) Event {
	attrs, _ := json.Marshal(mowerAttributes{Settings: &settingsAttributes{CuttingHeight: &cuttingHeight}})
	return Event{Type: EventSettings, ID: mowerID, Attributes: attrs}
}
