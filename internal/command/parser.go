package command

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnparsable is returned when a phrase names no away interval.
var ErrUnparsable = errors.New("could not parse away phrase")

// DateParser turns the free text of a slash command into an away interval.
type DateParser interface {
	Parse(phrase string, now time.Time) (start, end time.Time, err error)
}

// DurationParser understands intervals that start now:
//
//	2h
//	for 90m
//	1h30m
//	until 17:30   (UTC, rolls over to tomorrow when already past)
type DurationParser struct {
	// Max caps the accepted interval; zero means no cap.
	Max time.Duration
}

// Parse implements DateParser.
func (p DurationParser) Parse(phrase string, now time.Time) (time.Time, time.Time, error) {
	text := strings.ToLower(strings.TrimSpace(phrase))
	start := now.UTC()

	var end time.Time
	if rest, ok := strings.CutPrefix(text, "until "); ok {
		clock, err := time.Parse("15:04", strings.TrimSpace(rest))
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, phrase)
		}
		end = time.Date(start.Year(), start.Month(), start.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
	} else {
		text = strings.TrimPrefix(text, "for ")
		text = strings.ReplaceAll(text, " ", "")
		d, err := time.ParseDuration(text)
		if err != nil || d <= 0 {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrUnparsable, phrase)
		}
		end = start.Add(d)
	}

	if d := end.Sub(start); p.Max > 0 && d > p.Max {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q exceeds %s", ErrUnparsable, phrase, p.Max)
	}
	return start, end, nil
}
