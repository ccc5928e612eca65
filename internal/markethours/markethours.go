// Package markethours knows the NSE cash-market session: 9:15–15:30 IST on
// weekdays that are not exchange holidays.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Market hours in IST
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// IsMarketOpen returns true if t falls within trading hours of a trading day.
func IsMarketOpen(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return false
	}
	hm := ist.Hour()*60 + ist.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	wd := ist.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsHoliday(ist)
}

// TodayClose returns the 15:30 IST close on t's calendar day.
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// LastClose returns the most recent session close at or before t. Bars
// stamped after it belong to a session still in progress.
func LastClose(t time.Time) time.Time {
	cl := TodayClose(t)
	if IsTradingDay(t) && !t.Before(cl) {
		return cl
	}
	d := cl.AddDate(0, 0, -1)
	for i := 0; i < 15; i++ {
		if IsTradingDay(d) {
			return d
		}
		d = d.AddDate(0, 0, -1)
	}
	return cl.AddDate(0, 0, -1)
}

// Status is a short human description for logs and health output.
func Status(t time.Time) string {
	ist := t.In(IST)
	if IsMarketOpen(ist) {
		return fmt.Sprintf("open (closes %s)", TodayClose(ist).Format("15:04"))
	}
	return fmt.Sprintf("closed (last close %s)", LastClose(ist).Format("Mon 02 Jan 15:04"))
}
