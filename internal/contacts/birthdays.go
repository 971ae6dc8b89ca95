package contacts

import "time"

const monthDayLayout = "01-02"

// BirthdayRanges returns the month-day ranges covering [today, today+days].
// A window crossing New Year is split in two; a window of a year or more
// covers every day.
func BirthdayRanges(today time.Time, days int) []DayRange {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, days)
	from, to := start.Format(monthDayLayout), end.Format(monthDayLayout)

	if days >= 365 {
		return []DayRange{{From: "01-01", To: "12-31"}}
	}
	if end.Year() == start.Year() {
		return []DayRange{{From: from, To: to}}
	}
	return []DayRange{
		{From: from, To: "12-31"},
		{From: "01-01", To: to},
	}
}
