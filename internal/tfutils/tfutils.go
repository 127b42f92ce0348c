package tfutils

import (
	"context"
	"errors"
	"time"
)

// ParseTimeframe parses a timeframe string (e.g., "5s", "1m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1s":
		return time.Second, nil
	case "5s":
		return 5 * time.Second, nil
	case "10s":
		return 10 * time.Second, nil
	case "30s":
		return 30 * time.Second, nil
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, errors.New("unsupported timeframe")
	}
}

// GetSupportedTimeframes returns all supported timeframes
func GetSupportedTimeframes() []string {
	return []string{"1s", "5s", "10s", "30s", "1m", "5m", "15m", "30m", "1h", "4h", "1d"}
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	d, err := ParseTimeframe(timeframe)
	return err == nil && d > 0
}

// FloorTimeSec floors t to the start of its timeframe bucket and returns unix
// seconds. The minimum bucket resolution is one second.
func FloorTimeSec(t time.Time, timeframe time.Duration) int64 {
	tfSec := int64(timeframe / time.Second)
	return t.Unix() / tfSec * tfSec
}

// FloorTime floors t to the start of its timeframe bucket.
func FloorTime(t time.Time, timeframe time.Duration) time.Time {
	return time.Unix(FloorTimeSec(t, timeframe), 0).UTC()
}

// NowFloorTime floors the current time to the start of its timeframe bucket.
func NowFloorTime(timeframe time.Duration) time.Time {
	return FloorTime(time.Now().UTC(), timeframe)
}

// Schedule describes a repeating wall-clock alignment: fire at every multiple
// of Interval plus Offset. Offset must be less than Interval.
type Schedule struct {
	Interval time.Duration
	Offset   time.Duration
}

// NewSchedule returns a schedule firing at interval boundaries shifted by offset.
func NewSchedule(interval, offset time.Duration) Schedule {
	return Schedule{Interval: interval, Offset: offset}
}

// NextSleepDurationMs returns how long to sleep from currMs (unix millis) until
// the next scheduled tick, in milliseconds. Always positive.
func (s Schedule) NextSleepDurationMs(currMs int64) int64 {
	intervalSec := int64(s.Interval / time.Second)
	offsetSec := int64(s.Offset / time.Second)
	currSec := currMs / 1000
	nextSec := currSec/intervalSec*intervalSec + offsetSec
	if nextSec <= currSec {
		nextSec += intervalSec
	}
	return nextSec*1000 - currMs
}

// SleepUntilNext blocks until the next scheduled tick or until ctx is done.
// It returns ctx.Err() when cancelled.
func (s Schedule) SleepUntilNext(ctx context.Context) error {
	d := time.Duration(s.NextSleepDurationMs(time.Now().UnixMilli())) * time.Millisecond
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
