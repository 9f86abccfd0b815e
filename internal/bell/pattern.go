// Package bell converts time of day into ship's bell strike patterns.
//
// The day is divided into 48 half-hour boundaries. Within each
// four-hour watch the bell count climbs from one to eight and then
// starts again, so the pattern for a time depends only on its boundary
// index modulo 8.
package bell

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// SecondsPerDay is the length of a civil day without leap seconds.
	SecondsPerDay = 24 * 60 * 60

	// SecondsPerBoundary is the length of one half-hour bell interval.
	SecondsPerBoundary = 30 * 60

	// BoundariesPerDay is the number of half-hour marks in a day.
	BoundariesPerDay = SecondsPerDay / SecondsPerBoundary

	// BoundariesPerWatch is the number of half-hours in a four-hour watch.
	BoundariesPerWatch = 8
)

// Boundary is the index (0..47) of the half-hour mark most recently
// crossed.
type Boundary int

// Seconds returns the second of the day at which the boundary begins.
func (b Boundary) Seconds() int {
	return int(b.normalize()) * SecondsPerBoundary
}

func (b Boundary) normalize() Boundary {
	n := b % BoundariesPerDay
	if n < 0 {
		n += BoundariesPerDay
	}
	return n
}

// Pattern is an ordered sequence of strike groups. Each group is one or
// two consecutive rings; groups are separated by a longer pause.
type Pattern []int

// Strikes returns the total number of rings in the pattern.
func (p Pattern) Strikes() int {
	n := 0
	for _, g := range p {
		n += g
	}
	return n
}

// Equal reports whether two patterns have identical groups.
func (p Pattern) Equal(o Pattern) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// String renders the pattern as group sizes joined by dashes, e.g. "2-2-1".
func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, g := range p {
		parts[i] = strconv.Itoa(g)
	}
	return strings.Join(parts, "-")
}

// Name returns the traditional spoken name, e.g. "five bells".
func (p Pattern) Name() string {
	n := p.Strikes()
	if n == 1 {
		return "one bell"
	}
	words := [...]string{"", "one", "two", "three", "four", "five", "six", "seven", "eight"}
	if n > 0 && n < len(words) {
		return words[n] + " bells"
	}
	return strconv.Itoa(n) + " bells"
}

// NormalizeSeconds maps any integer onto [0, SecondsPerDay).
func NormalizeSeconds(seconds int) int {
	s := seconds % SecondsPerDay
	if s < 0 {
		s += SecondsPerDay
	}
	return s
}

// BoundaryOf returns the half-hour boundary containing secondsOfDay.
// A value that is an exact multiple of 1800 starts the next interval.
func BoundaryOf(secondsOfDay int) Boundary {
	return Boundary(NormalizeSeconds(secondsOfDay) / SecondsPerBoundary)
}

// PatternFor returns the strike pattern for the half-hour interval
// containing secondsOfDay. It is pure and total: out-of-range inputs
// wrap around the day.
func PatternFor(secondsOfDay int) Pattern {
	units := int(BoundaryOf(secondsOfDay))%BoundariesPerWatch + 1

	p := make(Pattern, 0, (units+1)/2)
	for i := 0; i < units/2; i++ {
		p = append(p, 2)
	}
	if units%2 == 1 {
		p = append(p, 1)
	}
	return p
}

// Due returns the pattern struck at the instant boundary b is crossed.
// The instant belongs to the interval it completes, so crossing into
// boundary 1 (00:30) strikes one bell and crossing into boundary 8
// (04:00) or boundary 0 (midnight) strikes eight bells.
func Due(b Boundary) Pattern {
	return PatternFor(b.normalize().Seconds() - 1)
}

// ParsePattern parses the form produced by Pattern.String.
func ParsePattern(s string) (Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	fields := strings.Split(s, "-")
	p := make(Pattern, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 1 || n > 2 {
			return nil, fmt.Errorf("invalid strike group %q in pattern %q", f, s)
		}
		p = append(p, n)
	}
	return p, nil
}
