package guard

import "slices"

// StateMapping translates an arbitrary state attribute on a user record into
// enabled/disabled. Disabled values are checked before enabled values; a value
// matching neither set yields Default.
type StateMapping struct {
	// Field is the attribute name on the user record. Empty means the record
	// has no state attribute and every actor counts as enabled.
	Field          string
	EnabledValues  []string
	DisabledValues []string
	Default        bool
}

// Resolve maps a raw attribute value to enabled/disabled.
func (m StateMapping) Resolve(value string) bool {
	if m.Field == "" {
		return true
	}
	if slices.Contains(m.DisabledValues, value) {
		return false
	}
	if slices.Contains(m.EnabledValues, value) {
		return true
	}
	return m.Default
}

// DefaultStateMapping mirrors the stock configuration: a "state" column where
// "1" is enabled, "0" is disabled, anything else disabled.
func DefaultStateMapping() StateMapping {
	return StateMapping{
		Field:          "state",
		EnabledValues:  []string{"1"},
		DisabledValues: []string{"0"},
		Default:        false,
	}
}
