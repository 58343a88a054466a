// Package cronexpr validates 5-field cron expressions and computes their
// next occurrence by bounded forward simulation.
//
// The grammar is deliberately narrow: each of the five whitespace-separated
// fields (minute, hour, day-of-month, month, day-of-week) is either "*" or
// a comma-separated list of integers and inclusive integer ranges ("a-b").
// Step syntax, names and the like are not accepted.
//
// Next walks forward from the reference instant at one-minute resolution,
// evaluated in UTC, with a hard ceiling of 30 days (43200 steps). The
// ceiling is part of the contract: impossible combinations such as
// day-of-month 31 in a 30-day month give no occurrence instead of an
// unbounded search.
package cronexpr

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxSteps bounds the forward simulation to 30 days of minutes.
const maxSteps = 60 * 24 * 30

var fieldPattern = regexp.MustCompile(`^(\*|\d+(-\d+)?(,\d+(-\d+)?)*)$`)

// IsValid reports whether expr is a well-formed 5-field expression.
func IsValid(expr string) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return false
	}
	for _, field := range fields {
		if !fieldPattern.MatchString(field) {
			return false
		}
	}
	return true
}

// Next returns the first instant strictly after from that satisfies every
// field of expr, or ok=false if expr is invalid or no occurrence exists
// within the 30-day ceiling. Candidates keep the seconds of the reference
// instant; field matching uses UTC.
func Next(from time.Time, expr string) (time.Time, bool) {
	if !IsValid(expr) {
		return time.Time{}, false
	}
	fields := strings.Fields(expr)
	minField, hourField, domField, monthField, dowField := fields[0], fields[1], fields[2], fields[3], fields[4]

	for i := 1; i <= maxSteps; i++ {
		candidate := from.Add(time.Duration(i) * time.Minute)
		utc := candidate.UTC()
		if matchField(minField, utc.Minute()) &&
			matchField(hourField, utc.Hour()) &&
			matchField(domField, utc.Day()) &&
			matchField(monthField, int(utc.Month())) &&
			matchField(dowField, int(utc.Weekday())) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

// matchField assumes the field already passed IsValid.
func matchField(field string, value int) bool {
	if field == "*" {
		return true
	}
	for _, segment := range strings.Split(field, ",") {
		if lo, hi, ok := strings.Cut(segment, "-"); ok {
			start, _ := strconv.Atoi(lo)
			end, _ := strconv.Atoi(hi)
			if value >= start && value <= end {
				return true
			}
			continue
		}
		if n, _ := strconv.Atoi(segment); n == value {
			return true
		}
	}
	return false
}
