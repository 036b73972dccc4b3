// Package dates resolves relative date phrases spoken by callers into
// absolute calendar dates. Resolution is pure and total: input that cannot be
// resolved is returned unchanged, so already-absolute dates (e.g. 2024-01-15)
// pass through untouched.
package dates

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// weekdayNames maps full and common abbreviated weekday names, in a fixed
// order so substring matching is deterministic.
var weekdayNames = []struct {
	name string
	day  time.Weekday
}{
	{"monday", time.Monday},
	{"mon", time.Monday},
	{"tuesday", time.Tuesday},
	{"tues", time.Tuesday},
	{"tue", time.Tuesday},
	{"wednesday", time.Wednesday},
	{"wed", time.Wednesday},
	{"thursday", time.Thursday},
	{"thurs", time.Thursday},
	{"thur", time.Thursday},
	{"thu", time.Thursday},
	{"friday", time.Friday},
	{"fri", time.Friday},
	{"saturday", time.Saturday},
	{"sat", time.Saturday},
	{"sunday", time.Sunday},
	{"sun", time.Sunday},
}

// Resolve converts a relative date expression into a YYYY-MM-DD date relative
// to ref. Rules are evaluated in precedence order; the first match wins:
//
//  1. "tomorrow"/"tom" -> ref+1
//  2. "day after tomorrow"/"day after"/"day after tom" -> ref+2
//  3. "next <weekday>" -> next future occurrence, strictly excluding today
//  4. "next week"/"next wk" -> next Monday, never today
//  5. "this <weekday>" -> this week's occurrence, today allowed
//  6. anything else -> returned unchanged
func Resolve(expr string, ref time.Time) string {
	if expr == "" {
		return expr
	}
	lower := strings.ToLower(strings.TrimSpace(expr))

	switch lower {
	case "tomorrow", "tom":
		return format(ref.AddDate(0, 0, 1))
	case "day after tomorrow", "day after", "day after tom":
		return format(ref.AddDate(0, 0, 2))
	}

	for _, w := range weekdayNames {
		if strings.Contains(lower, "next "+w.name) {
			offset := daysUntil(ref.Weekday(), w.day)
			if offset == 0 {
				offset = 7
			}
			return format(ref.AddDate(0, 0, offset))
		}
	}

	if lower == "next week" || lower == "next wk" {
		offset := daysUntil(ref.Weekday(), time.Monday)
		if offset == 0 {
			offset = 7
		}
		return format(ref.AddDate(0, 0, offset))
	}

	for _, w := range weekdayNames {
		if strings.Contains(lower, "this "+w.name) {
			return format(ref.AddDate(0, 0, daysUntil(ref.Weekday(), w.day)))
		}
	}

	return expr
}

// daysUntil returns the forward offset in days from one weekday to another,
// in [0, 6].
func daysUntil(from, to time.Weekday) int {
	return (int(to) - int(from) + 7) % 7
}

func format(t time.Time) string {
	return t.Format(dateLayout)
}
