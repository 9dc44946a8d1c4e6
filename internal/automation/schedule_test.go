package automation

import (
	"testing"
	"time"
)

func TestScheduleValidate(t *testing.T) {
	cases := []struct {
		name     string
		schedule Schedule
		wantErr  bool
	}{
		{"interval", Every(5 * time.Minute), false},
		{"cron", Cron("*/5 * * * *"), false},
		{"cron macro", Cron("@hourly"), false},
		{"empty", Schedule{}, true},
		{"bad cron", Cron("not a schedule"), true},
		{"both forms", Schedule{every: time.Minute, expr: "* * * * *"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.schedule.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %s", tc.schedule)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestScheduleString(t *testing.T) {
	if got := Every(time.Minute).String(); got != "@every 1m0s" {
		t.Fatalf("unexpected interval string %q", got)
	}
	if got := Cron("*/5 * * * *").String(); got != "*/5 * * * *" {
		t.Fatalf("unexpected cron string %q", got)
	}
}
