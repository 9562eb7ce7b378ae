// Package parser turns buoy SMS payloads into structured sensor readings.
//
// A payload is a comma-delimited line, optionally preceded by the gateway's
// content marker. Two layouts are recognised by field count (see
// [DetectFormat]). Only a payload too short for either layout fails; every
// other malformed sub-field degrades to a nil location or a NaN value and
// is reported in [Reading.Malformed].
//
// GPS sub-format, fixed by the buoy firmware:
//
//	Lat: <signed-float> Lng: <signed-float>
package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ContentMarker precedes the payload in messages forwarded by the GSM gateway.
const ContentMarker = "✉️ Message content:"

// Field names used in Reading.Malformed.
const (
	FieldGPS         = "gps"
	FieldPH          = "ph"
	FieldTemperature = "temperature"
	FieldTDS         = "tds"
)

// ErrInsufficientFields is the only reason a payload is rejected.
var ErrInsufficientFields = errors.New("insufficient fields")

var gpsRe = regexp.MustCompile(
	`Lat:\s*([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)\s*Lng:\s*([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`,
)

// ParseError describes why a payload could not be turned into a Reading.
type ParseError struct {
	Kind   error
	Fields int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse sensor message: %v: got %d, need at least %d", e.Kind, e.Fields, legacyFieldCount)
}

// Unwrap lets errors.Is match the failure kind.
func (e *ParseError) Unwrap() error {
	return e.Kind
}

// Location is a WGS-84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Reading is the structured form of one buoy message.
type Reading struct {
	Format      Format
	BuoyID      int
	Date        string
	Time        string
	Location    *Location
	PH          float64
	Temperature float64
	TDS         float64
	// Malformed lists the sub-fields that could not be parsed and were
	// degraded instead.
	Malformed []string
}

// Parse extracts a Reading from content. The returned error, if any, is a
// *ParseError wrapping ErrInsufficientFields.
func Parse(content string) (Reading, error) {
	fields := splitPayload(content)

	format := DetectFormat(len(fields))
	l, ok := layouts[format]
	if !ok {
		return Reading{}, &ParseError{Kind: ErrInsufficientFields, Fields: len(fields)}
	}

	r := Reading{
		Format: format,
		Date:   strings.TrimSpace(fields[l.date]),
		Time:   strings.TrimSpace(fields[l.time]),
	}
	if l.buoyID != noField {
		r.BuoyID = parseBuoyID(fields[l.buoyID])
	}

	r.Location = parseGPS(fields[l.gps])
	if r.Location == nil {
		r.Malformed = append(r.Malformed, FieldGPS)
	}

	r.PH = r.parseValue(FieldPH, fields[l.ph])
	r.Temperature = r.parseValue(FieldTemperature, fields[l.temperature])
	r.TDS = r.parseValue(FieldTDS, fields[l.tds])

	return r, nil
}

// ExtractBuoyID derives the buoy id stored with a raw message: the leading
// field when it is a non-negative integer, otherwise 0.
func ExtractBuoyID(content string) int {
	fields := splitPayload(content)
	return parseBuoyID(fields[0])
}

// StripMarker returns the text after the content marker, or content
// unchanged when the marker is absent.
func StripMarker(content string) string {
	if _, after, found := strings.Cut(content, ContentMarker); found {
		return after
	}
	return content
}

func splitPayload(content string) []string {
	return strings.Split(StripMarker(content), ",")
}

// parseBuoyID accepts ids that fit the int4 buoy_id column; anything else
// is 0.
func parseBuoyID(s string) int {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil || id < 0 {
		return 0
	}
	return int(id)
}

func parseGPS(s string) *Location {
	m := gpsRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil || !finite(lat) {
		return nil
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil || !finite(lng) {
		return nil
	}
	return &Location{Lat: lat, Lng: lng}
}

func (r *Reading) parseValue(name, s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(v) {
		r.Malformed = append(r.Malformed, name)
		return math.NaN()
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
