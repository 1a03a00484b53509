package plugin

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout renders RFC3339 with microseconds and a numeric UTC offset
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

// Reading is one timestamped temperature sample in the host ingestion envelope
type Reading struct {
	Asset     string             `json:"asset"`
	Timestamp string             `json:"timestamp"`
	Key       string             `json:"key"`
	Readings  map[string]float64 `json:"readings"`
}

// Batch is the ordered output of one poll cycle
type Batch []Reading

// Temperature returns the temperature value of the reading
func (r Reading) Temperature() float64 {
	return r.Readings["temperature"]
}

// AssetName builds the asset name of the probe on pin
func AssetName(prefix string, pin int) string {
	return fmt.Sprintf("%stemperature%d", prefix, pin)
}

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Clock supplies the wall-clock time of each reading
type Clock interface {
	Now() time.Time
}

// KeyGenerator supplies the unique key of each reading
type KeyGenerator interface {
	Next() string
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time {
	return time.Now()
}

// UUIDKeys generates random (version 4) UUID keys
type UUIDKeys struct{}

// Next returns a fresh random UUID string
func (UUIDKeys) Next() string {
	return uuid.NewString()
}
