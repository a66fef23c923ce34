// Package models provides request and response models for the bbagrid API.
package models

import (
	"strconv"
	"time"
)

// PagedResponseMeta is the cursor paging block of list responses.
type PagedResponseMeta struct {
	Limit      int     `json:"limit"`
	NextCursor *string `json:"nextCursor,omitempty"`
}

// HealthStatus is the coarse state of the service or one of its subsystems.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// timestampLayout keeps milliseconds; fixes arrive faster than once a second.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp serialises as a UTC RFC3339 string with millisecond precision.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, time.Time(t).UTC().Format(timestampLayout)), nil
}

// UnmarshalJSON accepts any RFC3339 string, with or without fractional
// seconds, and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return &time.ParseError{Layout: time.RFC3339, Value: string(data)}
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
