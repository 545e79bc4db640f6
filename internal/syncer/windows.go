package syncer

import "time"

// nextMonth returns the first instant of the calendar month after t.
func nextMonth(t time.Time) time.Time {
	year, month, _ := t.Date()
	month++
	if month > time.December {
		year++
		month = time.January
	}
	return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
}

// monthWindows yields successive (start, end] windows from start up to now,
// one calendar month wide, oldest first. The query is always issued against
// the full calendar-month boundary (queryEnd); onWindow separately receives
// highWaterMark = min(queryEnd, now) for the caller to persist, so the
// stored progress never runs ahead of the wall clock even though the query
// window itself can extend slightly past it.
func monthWindows(start time.Time, now func() time.Time, onWindow func(queryStart, queryEnd, highWaterMark time.Time) error) error {
	cur := start
	for !cur.After(now()) {
		queryEnd := nextMonth(cur)
		highWaterMark := queryEnd
		if n := now(); highWaterMark.After(n) {
			highWaterMark = n
		}
		if err := onWindow(cur, queryEnd, highWaterMark); err != nil {
			return err
		}
		cur = queryEnd
	}
	return nil
}
