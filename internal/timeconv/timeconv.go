// Package timeconv converts naive dataset timestamps between UTC and the
// station-local UTC+8 zone.
package timeconv

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the naive timestamp format used by the dataset files.
const Layout = "2006-01-02 15:04:05"

var ErrInvalidTimezone = errors.New("invalid timezone")

// Timezone is one of the two operational zones of the dataset.
type Timezone int

const (
	UTC Timezone = iota
	UTC8
)

// utc8 is Asia/Shanghai, which has kept a fixed +08:00 offset since 1991.
var utc8 = time.FixedZone("UTC+8", 8*60*60)

// ParseTimezone accepts "UTC" or "UTC+8".
func ParseTimezone(s string) (Timezone, error) {
	switch s {
	case "UTC":
		return UTC, nil
	case "UTC+8":
		return UTC8, nil
	}
	return UTC, fmt.Errorf("%w: %q (want UTC or UTC+8)", ErrInvalidTimezone, s)
}

func (tz Timezone) String() string {
	if tz == UTC8 {
		return "UTC+8"
	}
	return "UTC"
}

func (tz Timezone) Location() *time.Location {
	if tz == UTC8 {
		return utc8
	}
	return time.UTC
}

// In converts an absolute time into the zone.
func (tz Timezone) In(t time.Time) time.Time {
	return t.In(tz.Location())
}

// Localize interprets a naive wall-clock time as belonging to the zone.
func (tz Timezone) Localize(naive time.Time) time.Time {
	return time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), naive.Second(), 0, tz.Location())
}

// UnmarshalText lets the zone be used directly in flags and YAML.
func (tz *Timezone) UnmarshalText(b []byte) error {
	parsed, err := ParseTimezone(string(b))
	if err != nil {
		return err
	}
	*tz = parsed
	return nil
}

func (tz Timezone) MarshalText() ([]byte, error) {
	return []byte(tz.String()), nil
}

// StrToUTC parses a naive timestamp that is already in UTC.
func StrToUTC(s string) (time.Time, error) {
	naive, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return UTC.Localize(naive), nil
}

// LocalToUTC parses a naive UTC+8 timestamp and returns it in UTC.
func LocalToUTC(s string) (time.Time, error) {
	naive, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return UTC8.Localize(naive).UTC(), nil
}

// UTCToLocal parses a naive UTC timestamp and returns it in UTC+8.
func UTCToLocal(s string) (time.Time, error) {
	t, err := StrToUTC(s)
	if err != nil {
		return time.Time{}, err
	}
	return UTC8.In(t), nil
}
