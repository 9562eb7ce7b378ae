package anomaly

import (
	"fmt"
	"math"

	"github.com/septivank/buoy-telemetry/internal/parser"
)

const (
	minPH = 0.0
	maxPH = 14.0
)

// Detector flags suspicious sensor values. It never rejects a reading; the
// flags are informational and travel with the reading event.
type Detector struct {
	temperatureSpike          float64
	minDataPointsForDetection int
}

// NewDetector creates a new anomaly detector with the specified thresholds
func NewDetector(temperatureSpike float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		temperatureSpike:          temperatureSpike,
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// Inspect returns the anomaly flags for a reading. history holds the buoy's
// most recent temperatures, newest first; NaN entries are skipped.
func (d *Detector) Inspect(r parser.Reading, history []float64) []string {
	var flags []string

	if math.IsNaN(r.PH) {
		flags = append(flags, "ph not a number")
	} else if r.PH < minPH || r.PH > maxPH {
		flags = append(flags, fmt.Sprintf("ph %.2f outside %.0f-%.0f", r.PH, minPH, maxPH))
	}

	if math.IsNaN(r.TDS) {
		flags = append(flags, "tds not a number")
	} else if r.TDS < 0 {
		flags = append(flags, "negative tds")
	}

	if math.IsNaN(r.Temperature) {
		flags = append(flags, "temperature not a number")
	} else if reason, ok := d.detectSpike(r.Temperature, history); ok {
		flags = append(flags, reason)
	}

	return flags
}

// detectSpike compares value against the rolling mean of history
func (d *Detector) detectSpike(value float64, history []float64) (string, bool) {
	if d.temperatureSpike <= 0 {
		return "", false
	}

	sum := 0.0
	n := 0
	for _, v := range history {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}

	// Need enough historical data for spike detection
	if n < d.minDataPointsForDetection || n == 0 {
		return "", false
	}

	average := sum / float64(n)
	if math.Abs(value-average) > d.temperatureSpike {
		return fmt.Sprintf("temperature spike: %.2f deviates more than %.1f from rolling average %.2f",
			value, d.temperatureSpike, average), true
	}

	return "", false
}
