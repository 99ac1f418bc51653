package models

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestTimeOfDayOnKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	eight, err := ParseTimeOfDay("08:00")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}
	half, err := ParseTimeOfDay("22:30:15")
	if err != nil {
		t.Fatalf("ParseTimeOfDay: %v", err)
	}

	tests := []struct {
		name string
		tod  TimeOfDay
		date time.Time
		want time.Time
	}{
		{"spring forward", eight, time.Date(2024, 3, 10, 12, 0, 0, 0, loc), time.Date(2024, 3, 10, 8, 0, 0, 0, loc)},
		{"fall back", eight, time.Date(2024, 11, 3, 12, 0, 0, 0, loc), time.Date(2024, 11, 3, 8, 0, 0, 0, loc)},
		{"plain day", half, time.Date(2024, 6, 5, 1, 0, 0, 0, loc), time.Date(2024, 6, 5, 22, 30, 15, 0, loc)},
		{"utc", eight, time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC), time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tod.On(tt.date)
			if !got.Equal(tt.want) {
				t.Fatalf("On(%s) = %s, want %s", tt.date, got, tt.want)
			}
			if h, m, _ := got.Clock(); h != tt.want.Hour() || m != tt.want.Minute() {
				t.Fatalf("wall clock shifted to %02d:%02d", h, m)
			}
		})
	}
}
