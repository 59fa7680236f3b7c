// Package timescale converts between civil UTC dates, Julian Dates (JD) and
// Julian Ephemeris Dates (JDE).
//
// Civil dates use the Fliegel–Van Flandern integer day-number algorithm. The
// inverse is exact to the millisecond across 1900–2100.
package timescale

import (
	"math"
	"time"
)

// J2000 is the Julian Date of the J2000.0 epoch (2000-01-01 12:00:00 TT).
const J2000 = 2451545.0

// DaysPerCentury is the length of a Julian century in days.
const DaysPerCentury = 36525.0

// CivilDate is a broken-down UTC calendar date.
type CivilDate struct {
	Year, Month, Day     int
	Hour, Minute, Second int
	Millisecond          int
}

// Time returns the date as a UTC time.Time.
func (c CivilDate) Time() time.Time {
	return time.Date(c.Year, time.Month(c.Month), c.Day, c.Hour, c.Minute, c.Second,
		c.Millisecond*int(time.Millisecond), time.UTC)
}

// floorDiv is integer division rounding toward negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// dayNumber returns the Julian Day Number (the JD at noon) of a Gregorian date.
func dayNumber(y, m, d int) int {
	a := floorDiv(14-m, 12)
	yy := y + 4800 - a
	mm := m + 12*a - 3
	return d + floorDiv(153*mm+2, 5) + 365*yy + floorDiv(yy, 4) - floorDiv(yy, 100) + floorDiv(yy, 400) - 32045
}

// CivilDateToJD converts a Gregorian UTC date and time of day to a Julian Date.
func CivilDateToJD(y, m, d, h, min int, s float64) float64 {
	jdn := float64(dayNumber(y, m, d))
	return jdn + float64(h-12)/24 + float64(min)/1440 + s/86400
}

// JDToCivilDate converts a Julian Date back to a Gregorian UTC date, truncating
// to the millisecond.
func JDToCivilDate(jd float64) CivilDate {
	// Shift so that day boundaries fall at midnight, then work in whole milliseconds.
	shifted := jd + 0.5
	day := math.Floor(shifted)
	ms := int64(math.Round((shifted - day) * 86400000))
	if ms >= 86400000 {
		day++
		ms -= 86400000
	}

	// Inverse of the Fliegel–Van Flandern day number.
	l := int(day) + 68569
	n := floorDiv(4*l, 146097)
	l -= floorDiv(146097*n+3, 4)
	i := floorDiv(4000*(l+1), 1461001)
	l = l - floorDiv(1461*i, 4) + 31
	j := floorDiv(80*l, 2447)
	dd := l - floorDiv(2447*j, 80)
	l = floorDiv(j, 11)
	mm := j + 2 - 12*l
	yy := 100*(n-49) + i + l

	return CivilDate{
		Year:        yy,
		Month:       mm,
		Day:         dd,
		Hour:        int(ms / 3600000),
		Minute:      int(ms % 3600000 / 60000),
		Second:      int(ms % 60000 / 1000),
		Millisecond: int(ms % 1000),
	}
}

// TimeToJD converts t (any zone) to a UTC Julian Date.
func TimeToJD(t time.Time) float64 {
	t = t.UTC()
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9
	return CivilDateToJD(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), s)
}

// JDToTime converts a Julian Date to a UTC time.Time with millisecond resolution.
func JDToTime(jd float64) time.Time {
	return JDToCivilDate(jd).Time()
}

// Centuries returns Julian centuries elapsed since J2000.
func Centuries(jd float64) float64 {
	return (jd - J2000) / DaysPerCentury
}

// DecimalYear approximates the calendar year of jd as a fraction.
func DecimalYear(jd float64) float64 {
	return 2000 + (jd-J2000)/365.25
}
