package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/septivank/buoy-telemetry/internal/parser"
)

const (
	testTemperatureSpike          = 5.0
	testMinDataPointsForDetection = 3
)

func reading(ph, temp, tds float64) parser.Reading {
	return parser.Reading{PH: ph, Temperature: temp, TDS: tds}
}

func TestInspect_NormalReading(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(7.2, 28.5, 450), []float64{28, 28.2, 29})

	assert.Empty(t, flags)
}

func TestInspect_NaNFields(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(math.NaN(), math.NaN(), math.NaN()), nil)

	assert.Equal(t, []string{"ph not a number", "tds not a number", "temperature not a number"}, flags)
}

func TestInspect_PHOutOfRange(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(15.1, 28, 450), nil)

	assert.Equal(t, []string{"ph 15.10 outside 0-14"}, flags)
}

func TestInspect_NegativeTDS(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(7, 28, -1), nil)

	assert.Equal(t, []string{"negative tds"}, flags)
}

func TestInspect_TemperatureSpike(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(7, 40, 450), []float64{28, 28.5, 27.5, 28})

	if assert.Len(t, flags, 1) {
		assert.Contains(t, flags[0], "temperature spike")
	}
}

func TestInspect_InsufficientHistory(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	// NaN history entries do not count towards the minimum
	flags := d.Inspect(reading(7, 40, 450), []float64{28, math.NaN(), 28})

	assert.Empty(t, flags)
}

func TestInspect_InfiniteHistoryIgnored(t *testing.T) {
	d := NewDetector(testTemperatureSpike, testMinDataPointsForDetection)

	flags := d.Inspect(reading(7, 28.5, 450), []float64{math.Inf(1), 28, 28.5, 29})
	assert.Empty(t, flags)

	// without the infinite entry there are too few points to compare against
	flags = d.Inspect(reading(7, 40, 450), []float64{math.Inf(1), 28, 28})
	assert.Empty(t, flags)
}

func TestInspect_SpikeDetectionDisabled(t *testing.T) {
	d := NewDetector(0, testMinDataPointsForDetection)

	flags := d.Inspect(reading(7, 90, 450), []float64{28, 28, 28, 28})

	assert.Empty(t, flags)
}
