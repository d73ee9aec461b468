package notify

import (
	"slices"
	"time"

	"chatcore/internal/domain"
)

// InDND reports whether now falls inside the preference's do-not-disturb
// window. A window whose start is after its end wraps past midnight; the day
// check uses now's weekday, so an empty day list never matches. Unparseable or
// empty windows never match either.
func InDND(pref *domain.NotificationPreference, now time.Time) bool {
	if pref == nil || !pref.DNDEnabled {
		return false
	}
	if !slices.Contains(pref.DNDDays, int(now.Weekday())) {
		return false
	}
	start, ok := minuteOfDay(pref.DNDStartTime)
	if !ok {
		return false
	}
	end, ok := minuteOfDay(pref.DNDEndTime)
	if !ok || start == end {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func minuteOfDay(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
