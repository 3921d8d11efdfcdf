package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{-5, "0s"},
		{0, "0s"},
		{12, "12s"},
		{270, "4m 30s"},
		{3900, "1h 05m"},
		{90061, "25h 01m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.in), "seconds=%d", tt.in)
	}
}

func TestFormatRelative(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-20 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5 min ago"},
		{now.Add(-3 * time.Hour), "3 h ago"},
		{now.Add(-30 * time.Hour), "yesterday"},
		{now.Add(-4 * 24 * time.Hour), "4 days ago"},
		{now.Add(-15 * 24 * time.Hour), "2 weeks ago"},
		{now.Add(-65 * 24 * time.Hour), "2 months ago"},
		{now.Add(-400 * 24 * time.Hour), "1 years ago"},
		{now.Add(10 * time.Second), "now"},
		{now.Add(10 * time.Minute), "in 10 min"},
		{now.Add(50 * time.Hour), "in 2 days"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRelative(tt.at, now))
	}
}
