package funnel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbridge-edu/admissions-bot/internal/funnel"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestTourDateOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		from       time.Time
		weekOffset int
		want       []string
	}{
		{
			name: "from tuesday",
			from: day(2026, time.September, 1),
			want: []string{"2026-09-02", "2026-09-04", "2026-09-07"},
		},
		{
			name: "monday start includes same day",
			from: day(2026, time.September, 7),
			want: []string{"2026-09-07", "2026-09-09", "2026-09-11"},
		},
		{
			name: "saturday start skips weekend",
			from: day(2026, time.September, 5),
			want: []string{"2026-09-07", "2026-09-09", "2026-09-11"},
		},
		{
			name:       "next week page shifts by seven days",
			from:       day(2026, time.September, 1),
			weekOffset: 1,
			want:       []string{"2026-09-09", "2026-09-11", "2026-09-14"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dates := funnel.TourDateOptions(tc.from, tc.weekOffset)
			require.Len(t, dates, len(tc.want))
			for i, d := range dates {
				assert.Equal(t, tc.want[i], d.Format("2006-01-02"))
				wd := d.Weekday()
				assert.Contains(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, wd)
			}
		})
	}
}
