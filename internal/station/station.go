// Package station describes the aerodrome this instance serves.
package station

import (
	"time"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// Info is the station summary served to the UI
type Info struct {
	AirportCode            string    `json:"airport_code"`
	Latitude               float64   `json:"latitude"`
	Longitude              float64   `json:"longitude"`
	ElevationFeet          int       `json:"elevation_feet"`
	MagneticDeclinationDeg float64   `json:"magnetic_declination_deg"`
	CalculatedAt           time.Time `json:"calculated_at"`
}

// MagneticDeclination returns the declination in degrees (+East, -West)
// at the given position and time, or 0 if the model calculation fails.
func MagneticDeclination(lat, lon, elevFt float64, date time.Time) float64 {
	loc := egm96.NewLocationGeodetic(lat, lon, elevFt*0.3048)
	mag, err := wmm.CalculateWMMMagneticField(loc, date)
	if err != nil {
		return 0.0
	}
	return mag.D()
}

// InfoFor builds the station summary
func InfoFor(code string, lat, lon float64, elevFt int, now time.Time) Info {
	return Info{
		AirportCode:            code,
		Latitude:               lat,
		Longitude:              lon,
		ElevationFeet:          elevFt,
		MagneticDeclinationDeg: MagneticDeclination(lat, lon, float64(elevFt), now),
		CalculatedAt:           now.UTC(),
	}
}
