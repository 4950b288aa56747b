// Package dates reconciles the date and time shapes found in partner order
// exports into a date-only value and a display timestamp.
//
// Recognized shapes, first match wins:
//
//	44.031                     dot-grouped spreadsheet serial
//	14-04-2025                 day-month-year
//	14/04/2025                 day/month/year
//	14-04-2025 10:30:00        day-month-year with 24h time
//	04/14/2025 10:30:00 AM     month/day/year with 12h time
//	45761, 45761.4375          spreadsheet serial (days since 1899-12-30)
//
// Anything else goes through a generic parser. A string that matches one of
// the fixed shapes but names an impossible date yields nil and is not handed
// to the generic parser. Hyphenated dates are always read as day-month-year.
package dates

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const DisplayLayout = "02-01-2006 15:04:05"

var (
	dottedSerialRe = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
	dmyDashRe      = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`)
	dmySlashRe     = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	dmyTimeRe      = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4}) (\d{2}):(\d{2}):(\d{2})$`)
	mdyMeridiemRe  = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4}) (\d{2}):(\d{2}):(\d{2}) ([AaPp][Mm])$`)
	numericRe      = regexp.MustCompile(`^\d+(\.\d+)?$`)
	hasTimeRe      = regexp.MustCompile(`\d{2}:\d{2}`)
)

// serialEpoch is day zero of the spreadsheet serial calendar.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31, the last day a spreadsheet serial can name.
const maxSerial = 2958465

type Normalizer struct {
	loc *time.Location
}

func NewNormalizer(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// ParseDateTime returns the full instant described by input, or nil.
// Accepted inputs are strings, numbers, time.Time and nil.
func (n *Normalizer) ParseDateTime(input interface{}) *time.Time {
	switch v := input.(type) {
	case nil:
		return nil
	case time.Time:
		if v.IsZero() {
			return nil
		}
		t := v.In(n.loc)
		return &t
	case *time.Time:
		if v == nil {
			return nil
		}
		return n.ParseDateTime(*v)
	case float64:
		return n.fromSerial(v)
	case float32:
		return n.fromSerial(float64(v))
	case int:
		return n.fromSerial(float64(v))
	case int64:
		return n.fromSerial(float64(v))
	case string:
		return n.parseString(strings.TrimSpace(v))
	}
	return nil
}

// ParseDateOnly is ParseDateTime truncated to local midnight.
func (n *Normalizer) ParseDateOnly(input interface{}) *time.Time {
	t := n.ParseDateTime(input)
	if t == nil {
		return nil
	}
	d := truncate(*t)
	return &d
}

// FormatDisplay renders t as DD-MM-YYYY HH:MM:SS in the normalizer's location.
// A nil t renders as the empty string.
func (n *Normalizer) FormatDisplay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(n.loc).Format(DisplayLayout)
}

type Split struct {
	DateOnly         *time.Time
	DisplayTimestamp string
}

// SplitCombined derives the order date and display timestamp from a date
// value and an optional separate timestamp value.
//
// A date string that carries a time (HH:MM) is parsed once: the date part is
// its local calendar day and the display timestamp is the string verbatim.
// Otherwise the date value is parsed as date-only and the display timestamp
// comes from the timestamp value, or the date value when no timestamp is
// given. An unparseable timestamp leaves DisplayTimestamp empty.
func (n *Normalizer) SplitCombined(dateValue, timestampValue interface{}) Split {
	if s, ok := dateValue.(string); ok && hasTimeRe.MatchString(s) {
		return Split{
			DateOnly:         n.ParseDateOnly(s),
			DisplayTimestamp: s,
		}
	}

	source := timestampValue
	if isEmpty(source) {
		source = dateValue
	}
	return Split{
		DateOnly:         n.ParseDateOnly(dateValue),
		DisplayTimestamp: n.FormatDisplay(n.ParseDateTime(source)),
	}
}

func (n *Normalizer) parseString(s string) *time.Time {
	if s == "" {
		return nil
	}

	if dottedSerialRe.MatchString(s) {
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ".", ""), 64)
		if err != nil {
			return nil
		}
		return n.fromSerial(f)
	}

	if m := dmyDashRe.FindStringSubmatch(s); m != nil {
		return n.build(m[3], m[2], m[1], "0", "0", "0")
	}
	if m := dmySlashRe.FindStringSubmatch(s); m != nil {
		return n.build(m[3], m[2], m[1], "0", "0", "0")
	}
	if m := dmyTimeRe.FindStringSubmatch(s); m != nil {
		return n.build(m[3], m[2], m[1], m[4], m[5], m[6])
	}
	if m := mdyMeridiemRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[4])
		switch strings.ToUpper(m[7]) {
		case "PM":
			if hour < 12 {
				hour += 12
			}
		case "AM":
			if hour == 12 {
				hour = 0
			}
		}
		return n.build(m[3], m[1], m[2], strconv.Itoa(hour), m[5], m[6])
	}

	if numericRe.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return n.fromSerial(f)
	}

	t, err := dateparse.ParseIn(s, n.loc)
	if err != nil {
		return nil
	}
	t = t.In(n.loc)
	return &t
}

// build assembles a local time from decimal components and rejects values
// that time.Date would silently normalize, such as month 13 or day 32.
func (n *Normalizer) build(year, month, day, hour, minute, second string) *time.Time {
	y, err1 := strconv.Atoi(year)
	mo, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	h, err4 := strconv.Atoi(hour)
	mi, err5 := strconv.Atoi(minute)
	s, err6 := strconv.Atoi(second)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return nil
		}
	}

	t := time.Date(y, time.Month(mo), d, h, mi, s, 0, n.loc)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d ||
		t.Hour() != h || t.Minute() != mi || t.Second() != s {
		return nil
	}
	return &t
}

// fromSerial converts a spreadsheet serial day number. The serial encodes wall
// clock time, so the resulting components are placed in the local zone as is.
func (n *Normalizer) fromSerial(days float64) *time.Time {
	if math.IsNaN(days) || days < 0 || days > maxSerial {
		return nil
	}
	whole := math.Floor(days)
	ms := math.Round((days - whole) * 86400000)
	u := serialEpoch.AddDate(0, 0, int(whole)).Add(time.Duration(ms) * time.Millisecond)
	t := time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), n.loc)
	return &t
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isEmpty(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}
