package solar

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Fallback minutes used when the sun never rises or sets at the configured
// latitude (polar day/night).
const (
	DefaultSunrise = 6 * 60
	DefaultSunset  = 18 * 60
)

// Times returns sunrise and sunset as minutes from local midnight for the
// calendar day of t at the given coordinates.
func Times(lat, lon float64, t time.Time) (sunriseMin, sunsetMin int) {
	rise, set := sunrise.SunriseSunset(lat, lon, t.Year(), t.Month(), t.Day())
	if rise.IsZero() || set.IsZero() {
		return DefaultSunrise, DefaultSunset
	}
	loc := t.Location()
	rise = rise.In(loc)
	set = set.In(loc)
	return rise.Hour()*60 + rise.Minute(), set.Hour()*60 + set.Minute()
}
