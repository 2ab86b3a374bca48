// Package schedule encodes and decodes the schedule annotation carried
// inline in a destination's notes, and computes where a time-stamped item
// belongs in an ordered day timeline.
//
// The annotation is a single line of the form
//
//	<<SCHED>> start=HH:MM duration=<int> confidence=<int 0-100>
//
// with any subset of the tokens present. The wire format keeps confidence as
// an integer percentage; everywhere else in the codebase confidence is a
// float64 in [0,1] and the conversion happens here, at the codec boundary.
package schedule

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Marker is the reserved token that opens a schedule annotation line.
const Marker = "<<SCHED>>"

// Annotation is the decoded schedule triple. All fields are optional; an
// item with no known start time has no annotation line at all.
type Annotation struct {
	StartMinute     *int     // minute of day, 0..1439
	DurationMinutes *int     // positive
	Confidence      *float64 // canonical scale, [0,1]
}

// HasStart reports whether the annotation carries a start minute.
func (a Annotation) HasStart() bool { return a.StartMinute != nil }

// Decode scans notes line by line for the marker prefix and parses its
// key=value tokens. Malformed tokens are ignored rather than failing:
// schedule metadata is advisory, not authoritative.
func Decode(notes string) Annotation {
	var ann Annotation
	for _, line := range strings.Split(notes, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, Marker) {
			continue
		}
		for _, token := range strings.Fields(strings.TrimPrefix(trimmed, Marker)) {
			key, value, ok := strings.Cut(token, "=")
			if !ok {
				continue
			}
			switch key {
			case "start":
				if minute, err := parseClockMinute(value); err == nil {
					ann.StartMinute = &minute
				}
			case "duration":
				if d, err := strconv.Atoi(value); err == nil && d > 0 {
					ann.DurationMinutes = &d
				}
			case "confidence":
				if pct, err := strconv.Atoi(value); err == nil && pct >= 0 && pct <= 100 {
					c := float64(pct) / 100
					ann.Confidence = &c
				}
			}
		}
		// At most one annotation line is honored; first found wins.
		return ann
	}
	return ann
}

// Strip returns the user-authored note text with any annotation line
// removed. Round-tripping through Encode then Strip leaves user text
// unchanged.
func Strip(notes string) string {
	if notes == "" {
		return ""
	}
	lines := strings.Split(notes, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), Marker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimLeft(strings.Join(kept, "\n"), "\n")
}

// Encode strips any prior annotation line from userNotes and, when the
// annotation carries a start minute, prepends a freshly built one. Without a
// start minute the stripped user notes are returned as-is: an item with no
// known time is not encoded as a sentinel value.
func Encode(userNotes string, ann Annotation) string {
	stripped := Strip(userNotes)
	if ann.StartMinute == nil {
		return stripped
	}

	var b strings.Builder
	b.WriteString(Marker)
	b.WriteString(" start=")
	b.WriteString(FormatMinute(*ann.StartMinute))
	if ann.DurationMinutes != nil {
		fmt.Fprintf(&b, " duration=%d", *ann.DurationMinutes)
	}
	if ann.Confidence != nil {
		fmt.Fprintf(&b, " confidence=%d", int(math.Round(*ann.Confidence*100)))
	}
	if stripped == "" {
		return b.String()
	}
	return b.String() + "\n" + stripped
}

// Slot pairs an item id with its decoded start minute for insertion-index
// computation. A nil minute sorts after every timed slot.
type Slot struct {
	ID          string
	StartMinute *int
}

// InsertionIndex returns the index at which an item with the desired start
// minute belongs in the ordered slots. Semantics are insert-before-equal:
// the first slot whose minute is greater than or equal to the desired minute
// is the insertion point, and a slot with no minute counts as infinitely
// late. A nil desired minute appends at the end. The slot matching excludeID
// is ignored, so a rescheduled item never compares against itself.
func InsertionIndex(slots []Slot, desired *int, excludeID string) int {
	index := 0
	for _, slot := range slots {
		if excludeID != "" && slot.ID == excludeID {
			continue
		}
		if desired != nil && (slot.StartMinute == nil || *slot.StartMinute >= *desired) {
			return index
		}
		index++
	}
	return index
}

// ParseClock parses either a bare HH:MM time or a full RFC 3339 date-time
// into a minute of day. Both are accepted on the wire because the assistant
// sometimes only knows a time-of-day, not a date.
func ParseClock(value string) (int, error) {
	if minute, err := parseClockMinute(value); err == nil {
		return minute, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return 0, fmt.Errorf("not a HH:MM or RFC 3339 time: %q", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatMinute renders a minute of day as HH:MM.
func FormatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func parseClockMinute(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
