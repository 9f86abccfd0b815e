package proximity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

var errInvalidFix = errors.New("fix coordinates out of range")

// Fix is a position report.
type Fix struct {
	Latitude   float64 // decimal degrees, north positive
	Longitude  float64 // decimal degrees, east positive
	SpeedKnots float64
	Course     float64 // degrees true
	HasCourse  bool
	Time       time.Time
}

// Valid reports whether the fix holds usable coordinates.
func (f Fix) Valid() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 &&
		f.Longitude >= -180 && f.Longitude <= 180 &&
		!f.Time.IsZero()
}

// ParseOutput returns the first valid RMC fix in multi-line output, as
// produced by `gpspipe -r` or a serial receiver.
func ParseOutput(output string) (Fix, error) {
	var firstErr error
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !isRMC(line) {
			continue
		}
		fix, err := ParseRMC(line)
		if err == nil {
			return fix, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return Fix{}, firstErr
	}
	return Fix{}, fmt.Errorf("no RMC sentence in output")
}

func isRMC(line string) bool {
	return len(line) > 6 && line[0] == '$' && line[3:6] == "RMC"
}

// ParseRMC parses a recommended-minimum sentence such as
//
//	$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A
//
// A checksum, when present, must match. Void ("V") fixes are errors.
func ParseRMC(sentence string) (Fix, error) {
	if strings.HasPrefix(sentence, "$") && !strings.Contains(sentence, nmea.ChecksumSep) {
		sentence += nmea.ChecksumSep + nmea.Checksum(sentence[1:])
	}

	s, err := nmea.Parse(sentence)
	if err != nil {
		return Fix{}, fmt.Errorf("parse sentence: %w", err)
	}
	rmc, ok := s.(nmea.RMC)
	if !ok {
		return Fix{}, fmt.Errorf("not an RMC sentence: %q", sentence)
	}
	if rmc.Validity != nmea.ValidRMC {
		return Fix{}, fmt.Errorf("receiver reports no fix (status %q)", rmc.Validity)
	}
	for _, i := range []int{2, 4} {
		if !minutesInRange(rmc.Fields[i]) {
			return Fix{}, fmt.Errorf("coordinate %q: minutes out of range", rmc.Fields[i])
		}
	}

	ts, err := fixTime(rmc.Date, rmc.Time)
	if err != nil {
		return Fix{}, err
	}
	return Fix{
		Latitude:   rmc.Latitude,
		Longitude:  rmc.Longitude,
		SpeedKnots: rmc.Speed,
		Course:     rmc.Course,
		HasCourse:  rmc.Fields[7] != "",
		Time:       ts,
	}, nil
}

// minutesInRange checks the mm.mmmm part of a ddmm.mmmm coordinate.
func minutesInRange(field string) bool {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return false
	}
	mins := v - float64(int(v/100))*100
	return mins >= 0 && mins < 60
}

// fixTime combines RMC date and time in UTC. Two-digit years follow the
// time package: 69-99 are 19xx.
func fixTime(d nmea.Date, t nmea.Time) (time.Time, error) {
	if !d.Valid || !t.Valid {
		return time.Time{}, fmt.Errorf("sentence has no timestamp")
	}
	year := 2000 + d.YY
	if d.YY >= 69 {
		year = 1900 + d.YY
	}
	ts := time.Date(year, time.Month(d.MM), d.DD, t.Hour, t.Minute, t.Second, 0, time.UTC)
	if ts.Day() != d.DD || int(ts.Month()) != d.MM {
		return time.Time{}, fmt.Errorf("invalid date %02d%02d%02d", d.DD, d.MM, d.YY)
	}
	return ts, nil
}
