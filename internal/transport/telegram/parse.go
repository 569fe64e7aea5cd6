package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var errNoDeadline = errors.New("could not parse a time from the request")

// splitRequest separates "<when> ; <text>" into the deadline expression and
// the reminder content.
func splitRequest(payload string) (when, content string, err error) {
	when, content, ok := strings.Cut(payload, ";")
	when = strings.TrimSpace(when)
	content = strings.TrimSpace(content)
	if !ok || when == "" || content == "" {
		return "", "", errors.New(`expected "<when> ; <text>"`)
	}
	return when, content, nil
}

// parseDeadline turns a human-entered expression into an absolute timestamp
// in loc. Supported forms:
//
//	in 2h30m        (also a bare duration: "45m")
//	at 18:00        (today, or tomorrow if already past)
//	on 2026-09-05   (midnight; optional trailing HH:MM)
//	2026-09-05T18:00:00+02:00 (RFC3339)
func parseDeadline(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errNoDeadline
	}
	now = now.In(loc)
	lower := strings.ToLower(s)

	if rest, ok := strings.CutPrefix(lower, "in "); ok {
		return parseRelative(rest, now)
	}
	if rest, ok := strings.CutPrefix(lower, "at "); ok {
		return parseClock(rest, now, loc)
	}
	if rest, ok := strings.CutPrefix(lower, "on "); ok {
		return parseDate(rest, loc)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(lower); err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration must be positive, got %q", raw)
		}
		return now.Add(d), nil
	}
	if t, err := parseDate(lower, loc); err == nil {
		return t, nil
	}
	return time.Time{}, errNoDeadline
}

func parseRelative(s string, now time.Time) (time.Time, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return time.Time{}, fmt.Errorf("duration must be positive, got %q", s)
	}
	return now.Add(d), nil
}

func parseClock(s string, now time.Time, loc *time.Location) (time.Time, error) {
	hm, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD [HH:MM]", s)
}
