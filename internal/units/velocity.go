// Package units provides shared constants and conversion for velocity units.
// The sensor reports radial velocity in m/s; the API converts on the way out.
package units

// Unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

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
	return "mps, mph, kmph, kph"
}

// ConvertVelocity converts a velocity from meters per second to the target
// units. Decoded frames always carry m/s.
func ConvertVelocity(velocityMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return velocityMPS
	case MPH:
		return velocityMPS * 2.2369362920544
	case KMPH, KPH:
		return velocityMPS * 3.6
	default:
		return velocityMPS
	}
}
