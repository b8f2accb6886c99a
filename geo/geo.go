// Package geo provides the single-string canonical-form normalizers the
// tuple store's original geospatial data types relied on. They are pure
// parsers: the store persists their output as an ordinary string value and
// has no geospatial awareness of its own.
package geo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrBadLatLong and ErrBadDist report a malformed input string.
var (
	ErrBadLatLong = errors.New("geo: invalid lat/long format")
	ErrBadDist    = errors.New("geo: invalid distance format")
)

// distUnits converts a unit suffix to millimeters, matching the reference
// normalizer's unit table.
var distUnits = map[string]int64{
	"mm":     1,
	"cm":     10,
	"m":      1000,
	"meters": 1000,
	"km":     1000000,
}

// NormalizeLatLong parses "<lat>,<long>" and returns it in canonical form.
// Latitude must lie in [-90, 90] and longitude in [-180, 180]; the
// reference implementation's range check (`90 < lat < -90`) was
// unsatisfiable for any input, so it never rejected an out-of-range value.
// That bug is corrected below: an out-of-range coordinate is rejected, not
// silently accepted.
func NormalizeLatLong(s string) (string, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return "", errors.Wrapf(ErrBadLatLong, "missing comma in %q", s)
	}
	latv, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return "", errors.Wrapf(ErrBadLatLong, "latitude %q: %v", lat, err)
	}
	lonv, err := strconv.ParseFloat(strings.TrimSpace(lon), 64)
	if err != nil {
		return "", errors.Wrapf(ErrBadLatLong, "longitude %q: %v", lon, err)
	}
	if latv < -90.0 || latv > 90.0 {
		return "", errors.Wrapf(ErrBadLatLong, "latitude %v out of [-90, 90]", latv)
	}
	if lonv < -180.0 || lonv > 180.0 {
		return "", errors.Wrapf(ErrBadLatLong, "longitude %v out of [-180, 180]", lonv)
	}
	return fmt.Sprintf("%v,%v", latv, lonv), nil
}

// NormalizeDist parses a distance string like "10 km" and returns the value
// in millimeters.
func NormalizeDist(s string) (int64, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && isFloatByte(s[i]) {
		i++
	}
	if i == 0 {
		return 0, errors.Wrapf(ErrBadDist, "no numeric prefix in %q", s)
	}
	value, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadDist, "numeric prefix %q: %v", s[:i], err)
	}
	unit := strings.ToLower(strings.TrimSpace(s[i:]))
	mult, ok := distUnits[unit]
	if !ok {
		return 0, errors.Wrapf(ErrBadDist, "unknown unit %q", unit)
	}
	return int64(value * float64(mult)), nil
}

func isFloatByte(b byte) bool {
	return (b >= '0' && b <= '9') || b == '.' || b == '-' || b == '+'
}
