package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDateWindow(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	w := NewDateWindow(time.Date(2026, 10, 19, 23, 30, 0, 0, loc))
	assert.Equal(t, "2026-10-19", w.StartDate())
	assert.Equal(t, "2027-01-19", w.EndDate())
	assert.True(t, w.End.After(w.Start))
}

func TestNewDateWindow_MonthEnd(t *testing.T) {
	w := NewDateWindow(time.Date(2026, 11, 30, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-11-30", w.StartDate())
	assert.Equal(t, "2027-03-02", w.EndDate())
}

func TestDateWindow_ContainsDate(t *testing.T) {
	w := NewDateWindow(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC))
	cases := map[string]bool{
		"2026-01-09": false,
		"2026-01-10": true,
		"2026-02-28": true,
		"2026-04-10": true,
		"2026-04-11": false,
	}
	for date, want := range cases {
		got, err := w.ContainsDate(date)
		require.NoError(t, err, date)
		assert.Equal(t, want, got, date)
	}
	_, err := w.ContainsDate("10/01/2026")
	assert.Error(t, err)
}
