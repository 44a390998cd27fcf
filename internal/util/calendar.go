package util

import "time"

// TradingCalendar provides market-hours awareness for the US equity session
// (NYSE/Nasdaq regular hours, 9:30-16:00 Eastern, weekdays excluding
// exchange holidays).
type TradingCalendar struct {
	loc *time.Location
}

// usHolidays covers full-day exchange closures. Early-close days are treated
// as regular sessions.
var usHolidays = map[string]bool{
	"2025-01-01": true, "2025-01-20": true, "2025-02-17": true,
	"2025-04-18": true, "2025-05-26": true, "2025-06-19": true,
	"2025-07-04": true, "2025-09-01": true, "2025-11-27": true,
	"2025-12-25": true,
	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true,
	"2026-04-03": true, "2026-05-25": true, "2026-06-19": true,
	"2026-07-03": true, "2026-09-07": true, "2026-11-26": true,
	"2026-12-25": true,
}

// NewTradingCalendar creates a TradingCalendar for the US market.
func NewTradingCalendar() *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		// Zoneinfo missing on the host; fall back to a fixed offset so
		// callers still get a usable session clock.
		loc = time.FixedZone("EST", -5*3600)
	}
	return &TradingCalendar{loc: loc}
}

// IsTradingDay reports whether t falls on a weekday that is not an exchange
// holiday.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	et := t.In(tc.loc)
	if wd := et.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !usHolidays[et.Format("2006-01-02")]
}

// IsMarketOpen returns whether the regular session is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	et := t.In(tc.loc)
	mins := et.Hour()*60 + et.Minute()
	return mins >= 9*60+30 && mins < 16*60
}

// NextOpen returns the next regular-session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	et := t.In(tc.loc)
	for {
		open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, tc.loc)
		if tc.IsTradingDay(open) && !open.Before(et) {
			return open
		}
		et = time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, tc.loc).AddDate(0, 0, 1)
	}
}

// NextClose returns the next regular-session close at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	et := t.In(tc.loc)
	for {
		close := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, tc.loc)
		if tc.IsTradingDay(close) && !close.Before(et) {
			return close
		}
		et = time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, tc.loc).AddDate(0, 0, 1)
	}
}
