// Copyright OpenHarvest Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package oaipmh

import (
	"strings"
	"time"
)

// Granularity is the datestamp precision a repository supports. The
// constant values are the literal strings the Identify verb reports.
type Granularity string

const (
	// GranularityDay is whole-day precision, serialized as YYYY-MM-DD.
	GranularityDay Granularity = "YYYY-MM-DD"
	// GranularitySecond is seconds-UTC precision, serialized as
	// YYYY-MM-DDThh:mm:ssZ.
	GranularitySecond Granularity = "YYYY-MM-DDThh:mm:ssZ"
)

const (
	layoutSecond = "2006-01-02T15:04:05Z"
	layoutDay    = "2006-01-02"
)

// ParseGranularity maps the granularity string from an Identify response to
// a Granularity value. Anything outside the two standard forms is an error.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityDay, GranularitySecond:
		return g, nil
	default:
		return "", &DatestampError{Value: s}
	}
}

// FormatDatestamp serializes t as a wire datestamp at the given granularity.
// t is rendered in UTC and sub-second precision is dropped.
func FormatDatestamp(t time.Time, g Granularity) string {
	t = t.UTC().Truncate(time.Second)
	if g == GranularityDay {
		return t.Format(layoutDay)
	}
	return t.Format(layoutSecond)
}

// ParseDatestamp parses a wire datestamp in either granularity and reports
// which one it carried. A day-granular value resolves to midnight UTC.
//
// Fractional seconds are tolerated and dropped; some DSpace installations
// emit YYYY-MM-DDThh:mm:ss.sssZ stamps.
func ParseDatestamp(s string) (time.Time, Granularity, error) {
	date, clock, hasTime := strings.Cut(s, "T")
	if !hasTime {
		t, err := time.Parse(layoutDay, date)
		if err != nil {
			return time.Time{}, "", &DatestampError{Value: s}
		}
		return t, GranularityDay, nil
	}
	z, ok := strings.CutSuffix(clock, "Z")
	if !ok || z == "" {
		return time.Time{}, "", &DatestampError{Value: s}
	}
	if i := strings.IndexByte(z, '.'); i >= 0 {
		z = z[:i]
	}
	t, err := time.Parse(layoutSecond, date+"T"+z+"Z")
	if err != nil {
		return time.Time{}, "", &DatestampError{Value: s}
	}
	return t, GranularitySecond, nil
}

// ParseDatestampInclusive parses like [ParseDatestamp] but resolves a
// day-granular value to the last second of that day. Use it for the until
// argument, which covers the whole named day.
func ParseDatestampInclusive(s string) (time.Time, Granularity, error) {
	t, g, err := ParseDatestamp(s)
	if err != nil {
		return time.Time{}, "", err
	}
	if g == GranularityDay {
		t = t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	return t, g, nil
}

// ParseDatestampTolerant accepts YYYY, YYYY-MM and YYYY-MM-DD date forms in
// addition to the full second form, resolving omitted parts to their lowest
// value. The protocol paths never use it; readers for metadata schemas with
// looser date fields can.
func ParseDatestampTolerant(s string) (time.Time, error) {
	date, clock, hasTime := strings.Cut(s, "T")
	if hasTime {
		z, ok := strings.CutSuffix(clock, "Z")
		if !ok || z == "" {
			return time.Time{}, &DatestampError{Value: s}
		}
		t, err := time.Parse(layoutSecond, date+"T"+z+"Z")
		if err != nil {
			return time.Time{}, &DatestampError{Value: s}
		}
		return t, nil
	}
	var layout string
	switch strings.Count(date, "-") {
	case 0:
		layout = "2006"
	case 1:
		layout = "2006-01"
	case 2:
		layout = layoutDay
	default:
		return time.Time{}, &DatestampError{Value: s}
	}
	t, err := time.Parse(layout, date)
	if err != nil {
		return time.Time{}, &DatestampError{Value: s}
	}
	return t, nil
}
