package dates

import (
	"time"
)

// FormatDue renders a due time for speech relative to the current day:
// "today at 6:00 PM", "tomorrow at 6:00 PM" or "9/18/2025 at 6:00 PM".
func (n *Normalizer) FormatDue(due time.Time) string {
	due = due.In(n.loc)
	now := n.Now()
	clock := due.Format("3:04 PM")

	y, m, d := due.Date()
	if ny, nm, nd := now.Date(); y == ny && m == nm && d == nd {
		return "today at " + clock
	}
	if ty, tm, td := now.AddDate(0, 0, 1).Date(); y == ty && m == tm && d == td {
		return "tomorrow at " + clock
	}
	return due.Format("1/2/2006") + " at " + clock
}
