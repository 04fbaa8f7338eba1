// Package header stamps observatory telemetry onto captured camera frames.
//
// A Source resolves telemetry keys to their current values; an Enricher looks
// up every key of its Map and writes the values as FITS cards, converting
// numeric strings to numbers.
package header

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrSourceUnavailable indicates that a telemetry source cannot answer lookups.
var ErrSourceUnavailable = errors.New("header: telemetry source unavailable")

// Mapping binds a telemetry key to the FITS keyword it is stamped as.
type Mapping struct {
	Key     string
	Keyword string
	Comment string
}

// Source resolves telemetry keys to their current values. Keys without a
// known value are left out of the result.
type Source interface {
	Lookup(ctx context.Context, keys []string) (map[string]string, error)
}

// StaticSource is a Source backed by a fixed map.
type StaticSource map[string]string

var _ Source = StaticSource(nil)

// Lookup implements Source.
func (s StaticSource) Lookup(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s[k]; ok {
			out[k] = v
		}
	}

	return out, nil
}

// DefaultMap is the telemetry published by the MMT mount, hexapod and
// weather systems.
var DefaultMap = []Mapping{
	{"mount_mini_ra", "RA", "Object RA"},
	{"mount_mini_declination", "DEC", "Object Dec"},
	{"mount_mini_epoch", "EPOCH", "Coordinate Epoch"},
	{"mount_mini_cat_id", "CAT_ID", "Catalog Source Name"},
	{"mount_mini_cat_ra2000", "RA_2000", "Catalog RA (J2000)"},
	{"mount_mini_cat_dec2000", "DEC_2000", "Catalog Dec (J2000)"},
	{"mount_mini_alt", "EL", "Object Elevation at time of observation"},
	{"mount_mini_az", "AZ", "Object Azimuth at time of observation"},
	{"mount_mini_rot", "ROT", "Instrument Rotator Angle"},
	{"mount_mini_pa", "PA", "Parallactic Angle"},
	{"mount_mini_uttime", "UT", "UT of observation"},
	{"mount_mini_lst", "LST", "Sidereal Time of observation"},
	{"mount_mini_ha", "HA", "Hour Angle of observation"},
	{"mount_mini_airmass", "AIRMASS", "Object Airmass (Secant of Zenith Distance)"},
	{"mount_mini_total_off_alt", "EL_OFF", "Total elevation offset"},
	{"mount_mini_total_off_az", "AZ_OFF", "Total azimuth offset"},
	{"mount_mini_total_off_ra", "RA_OFF", "Total RA offset"},
	{"mount_mini_total_off_dec", "DEC_OFF", "Total Dec offset"},
	{"mount_mini_instoff_az", "AZ_INST", "Instrument Az offset"},
	{"mount_mini_instoff_alt", "EL_INST", "Instrument El offset"},
	{"hexapod_mini_curxyz_z", "FOCUS", "Hexapod Focus (um)"},
	{"hexapod_mini_curxyz_y", "TRANSY", "Hexapod Y Translation (um)"},
	{"hexapod_mini_curxyz_x", "TRANSX", "Hexapod X Translation (um)"},
	{"hexapod_mini_curxyz_tx", "TILTX", "Hexapod X Tilt (arcsec)"},
	{"hexapod_mini_curxyz_ty", "TILTY", "Hexapod Y Tilt (arcsec)"},
	{"hexapod_mini_curr_temp", "OSSTEMP", "Average OSS Temperature"},
	{"hexapod_mini_secondary", "SECNDRY", "Mounted secondary mirror"},
	{"hexapod_mini_instrument", "INST", "Mounted instrument"},
	{"ds_atmospheric_pressure", "P_BARO", "Barometric Pressure"},
	{"ds_chamber_dew", "CHAM_DPT", "Chamber Dewpoint"},
	{"ds_chamber_rh", "CHAM_RH", "Chamber RH"},
	{"ds_chamber_temp", "CHAM_T", "Chamber Temperature"},
	{"ds_outside_dew", "OUT_DPT", "Outside Dewpoint"},
	{"ds_outside_rh", "OUT_RH", "Outside RH"},
	{"ds_outside_temp", "OUT_T", "Outside Temperature"},
	{"ds_east_wind_speed_mph", "WIND_E", "Wind Speed (east sensor)"},
	{"ds_east_wind_direction", "WDIR_E", "Wind Direction (east sensor)"},
	{"ds_west_wind_speed_mph", "WIND_W", "Wind Speed (west sensor)"},
	{"ds_west_wind_direction", "WDIR_W", "Wind Direction (west sensor)"},
}

// cardValue converts a telemetry string to the typed value of a FITS card.
func cardValue(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "None" {
		return nil, false
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	switch s {
	case "true", "True":
		return true, true
	case "false", "False":
		return false, true
	}

	return s, true
}
