package util

import (
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers whether an exchange trades on a given date.
type TradingCalendar struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NewTradingCalendar loads the calendar for an ISO 10383 MIC (e.g. "xnys").
// Unknown MICs fall back to NYSE, then to a Mon-Fri rule.
func NewTradingCalendar(mic string) *TradingCalendar {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		cal = calendar.GetCalendar("xnys")
	}
	if cal == nil {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			loc = time.UTC
		}
		return &TradingCalendar{loc: loc}
	}
	return &TradingCalendar{cal: cal, loc: cal.Loc}
}

// IsTradingDay reports whether the exchange is open on the calendar date of d.
func (tc *TradingCalendar) IsTradingDay(d time.Time) bool {
	if tc.loc != nil {
		// keep the calendar date, move it into the exchange zone at midday
		d = time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, tc.loc)
	}
	if tc.cal == nil {
		wd := d.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return tc.cal.IsBusinessDay(d)
}

// IsExpirationTradingDay validates a YYYYMMDD expiration and checks it against the calendar.
func (tc *TradingCalendar) IsExpirationTradingDay(exp int) (bool, error) {
	t, err := ParseExpiration(exp)
	if err != nil {
		return false, err
	}
	return tc.IsTradingDay(t), nil
}
