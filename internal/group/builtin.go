package group

// DescribeBuiltinDomains registers the core entity domains that ship their
// own group states.
func DescribeBuiltinDomains(r *Registry) {
	r.OnOffStates("lock",
		[]string{"locking", "open", "opening", "unlocked", "unlocking"},
		"unlocked", "locked")
	r.OnOffStates("water_heater",
		[]string{StateOn, "eco", "electric", "performance", "high_demand", "heat_pump", "gas"},
		StateOn, StateOff)
	r.OnOffStates("alarm_control_panel",
		[]string{StateOn, "armed_away", "armed_custom_bypass", "armed_home", "armed_night", "armed_vacation", "triggered"},
		StateOn, StateOff)
	r.OnOffStates("climate",
		[]string{StateOn, "heat", "cool", "heat_cool", "auto", "fan_only"},
		StateOn, StateOff)
	r.OnOffStates("vacuum",
		[]string{StateOn, "cleaning", "returning", "error"},
		StateOn, StateOff)
	r.OnOffStates("device_tracker", []string{"home"}, "home", "not_home")
}
