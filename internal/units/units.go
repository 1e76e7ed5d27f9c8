// Package units provides the speed units understood by the estimator and
// conversion from the internal metres-per-second representation.
package units

import "strings"

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// Default is the display unit used when none is configured.
const Default = KMPH

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units.
// Unknown units fall back to m/s.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Convert re-expresses a speed given in one unit in another.
func Convert(speed float64, from, to string) float64 {
	if from == to {
		return speed
	}
	return ConvertSpeed(speed/ConvertSpeed(1, from), to)
}

// Common returns the unit shared by every entry of list, or Default when the
// list is empty or mixes units.
func Common(list []string) string {
	if len(list) == 0 {
		return Default
	}
	for _, u := range list[1:] {
		if Label(u) != Label(list[0]) {
			return Default
		}
	}
	return list[0]
}

// Label returns the short human label drawn next to a speed value.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}
