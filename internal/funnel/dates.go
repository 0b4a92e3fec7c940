package funnel

import "time"

// tourDateCount is how many dates each picker page offers.
const tourDateCount = 3

// TourDateOptions returns the next open-day tour dates starting from
// the given day plus weekOffset weeks. Tours run on Monday, Wednesday,
// and Friday; the scan covers two weeks and stops after three matches.
func TourDateOptions(from time.Time, weekOffset int) []time.Time {
	start := from.AddDate(0, 0, weekOffset*7)

	dates := make([]time.Time, 0, tourDateCount)
	for i := 0; i < 14; i++ {
		day := start.AddDate(0, 0, i)
		switch day.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
			dates = append(dates, day)
		}
		if len(dates) >= tourDateCount {
			break
		}
	}
	return dates
}
