package recognition

import "time"

// dedupWindow is how long after a logged recognition the same identity is
// considered already logged.
const dedupWindow = time.Hour

// RecentlyLogged reports whether the identity was already logged inside the
// current dedup window: true iff some event in history falls on the same
// calendar day as now (local time) and is not earlier than now minus one
// hour.
//
// The window is scoped to the calendar day, not a rolling hour: an event at
// 23:45 does not suppress a match at 00:30 the next day even though they are
// 45 minutes apart. The day boundary resets the window.
//
// history is expected to contain events for a single identity in
// non-decreasing timestamp order; out-of-order histories are not supported.
func RecentlyLogged(now time.Time, history []time.Time) bool {
	cutoff := now.Add(-dedupWindow)
	for _, t := range history {
		if sameDay(t, now) && !t.Before(cutoff) {
			return true
		}
	}
	return false
}

// sameDay reports whether two instants fall on the same local calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
