package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		spec  string
		every time.Duration
	}{
		{raw: "*/5 * * * *", spec: "*/5 * * * *"},
		{raw: "@hourly", spec: "@hourly"},
		{raw: "@every 15s", spec: "@every 15s"},
		{raw: "CRON: 0 0 * * *", spec: "0 0 * * *"},
		{raw: "30s", spec: "@every 30s", every: 30 * time.Second},
		{raw: "00:15", spec: "@every 15m0s", every: 15 * time.Minute},
		{raw: " 02:30 ", spec: "@every 2h30m0s", every: 150 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Spec() != tt.spec {
				t.Fatalf("Spec() = %q, want %q", got.Spec(), tt.spec)
			}
			if got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5s", "00:00", "01:75", "cron:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}
