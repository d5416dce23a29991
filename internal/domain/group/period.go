package group

import "time"

// Period is one billing window of a group: contributions recorded inside
// [Start, End) count toward it, and the expected amount falls due at DueAt.
type Period struct {
	Start time.Time
	End   time.Time
	DueAt time.Time
}

// PeriodFor computes the period containing the reference time under this
// policy. Monthly periods span calendar months with the due day clamped to
// the month's length; weekly periods span Monday through Sunday with the due
// day given as a weekday.
func (p Policy) PeriodFor(now time.Time) Period {
	switch p.Frequency {
	case FrequencyWeekly:
		return p.weeklyPeriod(now)
	default:
		return p.monthlyPeriod(now)
	}
}

func (p Policy) monthlyPeriod(now time.Time) Period {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)

	dueDay := p.DueDay
	lastDay := end.AddDate(0, 0, -1).Day()
	if dueDay <= 0 || dueDay > lastDay {
		dueDay = lastDay
	}
	due := time.Date(now.Year(), now.Month(), dueDay, 0, 0, 0, 0, now.Location())
	return Period{Start: start, End: end, DueAt: due}
}

func (p Policy) weeklyPeriod(now time.Time) Period {
	// Weeks run Monday through Sunday.
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -daysSinceMonday)
	end := start.AddDate(0, 0, 7)

	dueWeekday := time.Weekday(p.DueDay)
	offset := (int(dueWeekday) + 6) % 7
	due := start.AddDate(0, 0, offset)
	return Period{Start: start, End: end, DueAt: due}
}
