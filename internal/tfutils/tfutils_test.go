package tfutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	d, err := ParseTimeframe("5s")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)

	_, err = ParseTimeframe("7x")
	assert.Error(t, err)

	assert.True(t, IsValidTimeframe("1m"))
	assert.False(t, IsValidTimeframe(""))
}

func TestFloorTime(t *testing.T) {
	ts := time.Date(2023, 1, 1, 0, 15, 10, 0, time.UTC)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 15, 0, 0, time.UTC), FloorTime(ts, 5*time.Minute))
	assert.Equal(t, time.Date(2023, 1, 1, 0, 15, 10, 0, time.UTC), FloorTime(ts, time.Second))
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), FloorTime(ts, time.Hour))
}

func TestNextSleepDurationMs(t *testing.T) {
	curr := time.Date(2023, 1, 1, 0, 0, 15, 0, time.UTC).UnixMilli()
	assert.Equal(t, int64(5000), NewSchedule(5*time.Second, 0).NextSleepDurationMs(curr))
	assert.Equal(t, int64(1000), NewSchedule(5*time.Second, time.Second).NextSleepDurationMs(curr))

	curr = time.Date(2023, 1, 1, 0, 0, 56, 0, time.UTC).UnixMilli()
	assert.Equal(t, int64(4000), NewSchedule(5*time.Second, 0).NextSleepDurationMs(curr))

	curr = time.Date(2023, 1, 1, 0, 15, 10, 0, time.UTC).UnixMilli()
	assert.Equal(t, int64((5*60-10)*1000), NewSchedule(5*time.Minute, 0).NextSleepDurationMs(curr))
	assert.Equal(t, int64((60-10)*1000), NewSchedule(5*time.Minute, time.Minute).NextSleepDurationMs(curr))
}
