package program

import (
	"time"

	"github.com/greenside/irrigation-controller/internal/model"
)

// Start-time slot encoding, 16 bits per slot.
const (
	stDisabled    = 1 << 15
	stSunrise     = 1 << 14
	stSunset      = 1 << 13
	stNegative    = 1 << 12
	stMinutesMask = 0x7FF
)

// EncodeFixed builds an absolute-minutes slot value.
func EncodeFixed(minutes int) uint16 {
	return uint16(minutes) & stMinutesMask
}

// EncodeSunrise and EncodeSunset build solar-relative slot values from a
// signed minute offset.
func EncodeSunrise(offset int) uint16 { return encodeSolar(stSunrise, offset) }
func EncodeSunset(offset int) uint16  { return encodeSolar(stSunset, offset) }

func encodeSolar(base uint16, offset int) uint16 {
	v := base
	if offset < 0 {
		v |= stNegative
		offset = -offset
	}
	return v | (uint16(offset) & stMinutesMask)
}

// Disabled is the slot value for an unused start time.
const Disabled uint16 = stDisabled

// DecodeStartTime resolves a slot to minutes from midnight given the day's
// solar minutes. ok is false for a disabled slot.
func DecodeStartTime(encoded uint16, sunriseMin, sunsetMin int) (minutes int, ok bool) {
	if encoded&stDisabled != 0 {
		return 0, false
	}
	offset := int(encoded & stMinutesMask)
	if encoded&stNegative != 0 {
		offset = -offset
	}
	switch {
	case encoded&stSunrise != 0:
		m := sunriseMin + offset
		if m < 0 {
			m = 0
		}
		return m, true
	case encoded&stSunset != 0:
		m := sunsetMin + offset
		if m < 0 {
			m = 0
		}
		if m > 1439 {
			m = 1439
		}
		return m, true
	default:
		return int(encoded & stMinutesMask), true
	}
}

// epochDay is the number of calendar days since 1970-01-01 in the local
// calendar of t.
func epochDay(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// weekday returns the day of week normalized to Monday=0.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// SingleRunDay reports the epoch day a single_run program fires on.
func SingleRunDay(p *model.Program) int {
	return int(p.Days[0])<<8 | int(p.Days[1])
}

// daysMatch evaluates the program's calendar rule against the date of t.
func daysMatch(p *model.Program, t time.Time) bool {
	switch p.Type {
	case model.ProgramWeekly:
		return p.Days[0]&(1<<weekday(t)) != 0
	case model.ProgramSingleRun:
		return epochDay(t) == SingleRunDay(p)
	case model.ProgramMonthly:
		dom := int(p.Days[0] & 0x1F)
		if dom == 0 {
			// zero means last day of month
			return t.AddDate(0, 0, 1).Month() != t.Month()
		}
		return t.Day() == dom
	case model.ProgramInterval:
		interval := int(p.Days[1])
		remainder := int(p.Days[0])
		return interval > 0 && epochDay(t)%interval == remainder
	default:
		return false
	}
}

// oddEvenMatch applies the odd/even day restriction. Odd skips the 31st and
// Feb 29 so the cadence never produces back-to-back odd days.
func oddEvenMatch(p *model.Program, t time.Time) bool {
	switch p.OddEven {
	case model.RestrictOdd:
		if t.Day() == 31 {
			return false
		}
		if t.Month() == time.February && t.Day() == 29 {
			return false
		}
		return t.Day()%2 == 1
	case model.RestrictEven:
		return t.Day()%2 == 0
	default:
		return true
	}
}

// dateRangeMatch gates on the (month<<5)|day window; a from greater than to
// wraps around the new year.
func dateRangeMatch(p *model.Program, t time.Time) bool {
	if !p.DateRangeEnabled {
		return true
	}
	d := int(t.Month())<<5 | t.Day()
	if p.DateFrom <= p.DateTo {
		return d >= p.DateFrom && d <= p.DateTo
	}
	return d >= p.DateFrom || d <= p.DateTo
}

// timeMatch tests the minute-of-day against the program's start-time slots
// and returns the 1-based run number on a hit.
func timeMatch(p *model.Program, minute, sunriseMin, sunsetMin int) (int, bool) {
	if p.FixedStart {
		for i := 0; i < model.NumStartTimes; i++ {
			start, ok := DecodeStartTime(p.StartTimes[i], sunriseMin, sunsetMin)
			if ok && start == minute {
				return i + 1, true
			}
		}
		return 0, false
	}

	start, ok := DecodeStartTime(p.StartTimes[0], sunriseMin, sunsetMin)
	if !ok {
		return 0, false
	}
	repeatCount := int(p.StartTimes[1])
	intervalMin := int(p.StartTimes[2])

	if minute == start {
		return 1, true
	}
	if intervalMin <= 0 || minute < start {
		return 0, false
	}
	k := (minute - start) / intervalMin
	if k <= repeatCount && (minute-start)%intervalMin == 0 {
		return k + 1, true
	}
	return 0, false
}

// matchOn evaluates the whole rule set for the calendar date of day at the
// given minute-of-day.
func matchOn(p *model.Program, day time.Time, minute, sunriseMin, sunsetMin int) (int, bool) {
	if !daysMatch(p, day) || !oddEvenMatch(p, day) || !dateRangeMatch(p, day) {
		return 0, false
	}
	return timeMatch(p, minute, sunriseMin, sunsetMin)
}

// LastStartOfDay returns the latest minute-of-day the program can start at,
// used to decide when a single_run program has fired for the last time.
func LastStartOfDay(p *model.Program, sunriseMin, sunsetMin int) int {
	if p.FixedStart {
		last := -1
		for i := 0; i < model.NumStartTimes; i++ {
			if start, ok := DecodeStartTime(p.StartTimes[i], sunriseMin, sunsetMin); ok && start > last {
				last = start
			}
		}
		return last
	}
	start, ok := DecodeStartTime(p.StartTimes[0], sunriseMin, sunsetMin)
	if !ok {
		return -1
	}
	return start + int(p.StartTimes[1])*int(p.StartTimes[2])
}

// Match decides whether the program fires at the minute containing now,
// returning the 1-based run number within the day. Repeating programs that
// started the previous day and repeat past midnight are carried over by
// retrying yesterday's rule with the minute pushed out a day.
func Match(p *model.Program, now time.Time, sunriseMin, sunsetMin int) (int, bool) {
	if !p.Enabled {
		return 0, false
	}
	minute := now.Hour()*60 + now.Minute()

	if n, ok := matchOn(p, now, minute, sunriseMin, sunsetMin); ok {
		return n, true
	}

	if !p.FixedStart && int(p.StartTimes[2]) > 0 {
		yesterday := now.AddDate(0, 0, -1)
		if n, ok := matchOn(p, yesterday, minute+1440, sunriseMin, sunsetMin); ok {
			return n, true
		}
	}
	return 0, false
}
