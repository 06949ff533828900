package acl

import (
	"strconv"
)

// decimalPlacesKey is (device_class, unit).
type decimalPlacesKey struct {
	DeviceClass string
	Unit        string
}

// decimalPlaces is the formatting table keyed by device_class/unit.
var decimalPlaces = map[decimalPlacesKey]int{
	{"current", "mA"}:      1,
	{"voltage", "V"}:       2,
	{"power", "W"}:         2,
	{"temperature", "°C"}:  1,
	{"battery", "%"}:       0,
}

const defaultNumericDecimals = 2

// FormatNumeric renders state using a decimal-places table keyed by
// (device_class, unit), falling back to 2 decimals if the value parses as a
// float, else the raw string unchanged.
func FormatNumeric(state, deviceClass, unit string) string {
	f, err := strconv.ParseFloat(state, 64)
	if err != nil {
		return state
	}
	places, ok := decimalPlaces[decimalPlacesKey{deviceClass, unit}]
	if !ok {
		places = defaultNumericDecimals
	}
	return strconv.FormatFloat(f, 'f', places, 64)
}

// DecimalPlacesFor returns the configured decimal places for (deviceClass,
// unit), and whether an explicit entry exists (vs. the numeric default).
func DecimalPlacesFor(deviceClass, unit string) (int, bool) {
	places, ok := decimalPlaces[decimalPlacesKey{deviceClass, unit}]
	if !ok {
		return defaultNumericDecimals, false
	}
	return places, true
}

// IsNumeric reports whether s parses as a float.
func IsNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
