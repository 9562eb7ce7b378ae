package parser

// Format identifies which firmware message layout a payload was parsed with.
type Format int

const (
	// FormatUnknown is returned when the field count matches no known layout.
	FormatUnknown Format = iota
	// FormatLegacy is the first-generation six-field layout without a buoy id:
	// date, time, gps, ph, temperature, tds.
	FormatLegacy
	// FormatExtended prefixes the legacy layout with a buoy id. Fields past
	// the seventh are ignored.
	FormatExtended
)

const (
	legacyFieldCount   = 6
	extendedFieldCount = 7
)

// noField marks a layout slot that the format does not carry.
const noField = -1

// layout maps each reading field to its index in the comma-split payload.
type layout struct {
	buoyID      int
	date        int
	time        int
	gps         int
	ph          int
	temperature int
	tds         int
}

var layouts = map[Format]layout{
	FormatLegacy:   {buoyID: noField, date: 0, time: 1, gps: 2, ph: 3, temperature: 4, tds: 5},
	FormatExtended: {buoyID: 0, date: 1, time: 2, gps: 3, ph: 4, temperature: 5, tds: 6},
}

// DetectFormat picks the layout for a payload split into fieldCount parts.
// Six fields is the legacy layout, seven or more the extended layout.
func DetectFormat(fieldCount int) Format {
	switch {
	case fieldCount >= extendedFieldCount:
		return FormatExtended
	case fieldCount == legacyFieldCount:
		return FormatLegacy
	default:
		return FormatUnknown
	}
}

// String returns the lowercase name stored alongside parsed readings.
func (f Format) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) Format {
	switch s {
	case "legacy":
		return FormatLegacy
	case "extended":
		return FormatExtended
	default:
		return FormatUnknown
	}
}
