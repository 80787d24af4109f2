package processing

import (
	"testing"
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"github.com/matryer/is"
)

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

func thresholds(low, ok float64) *types.Thresholds {
	return &types.Thresholds{Low: &low, OK: &ok}
}

func TestDebouncerEmitsFirstSampleImmediately(t *testing.T) {
	is := is.New(t)
	d := NewDebouncer(100)

	v, changed := d.Update(1, at(0))
	is.True(changed)
	is.Equal(1, v)
}

func TestDebouncerSuppressesTransientFlip(t *testing.T) {
	is := is.New(t)
	d := NewDebouncer(100)

	_, changed := d.Update(1, at(0))
	is.True(changed)

	_, changed = d.Update(0, at(20))
	is.True(!changed)

	// reverts before the interval elapses, so nothing is emitted
	_, changed = d.Update(1, at(50))
	is.True(!changed)

	_, changed = d.Update(1, at(200))
	is.True(!changed)
}

func TestDebouncerSequence(t *testing.T) {
	is := is.New(t)
	d := NewDebouncer(100)

	v, changed := d.Update(1, at(0))
	is.True(changed)
	is.Equal(1, v)

	_, changed = d.Update(1, at(20))
	is.True(!changed)

	_, changed = d.Update(0, at(50))
	is.True(!changed)

	// 150ms - 50ms = 100ms, the boundary is inclusive
	v, changed = d.Update(0, at(150))
	is.True(changed)
	is.Equal(0, v)

	_, changed = d.Update(0, at(210))
	is.True(!changed)
}

func TestDebouncerIntervalIsMilliseconds(t *testing.T) {
	is := is.New(t)
	d := NewDebouncer(100)

	d.Update(1, at(0))
	d.Update(0, at(50))

	// 50ms after the change: far less than 100ms, must stay suppressed
	_, changed := d.Update(0, at(100))
	is.True(!changed)

	v, changed := d.Update(0, at(210))
	is.True(changed)
	is.Equal(0, v)
}

func TestMedianFilterWindow(t *testing.T) {
	is := is.New(t)
	m := NewMedianFilter(3)

	is.Equal(5.0, m.Update(5))
	is.Equal(5.0, m.Update(1)) // sorted [1 5], upper middle
	is.Equal(5.0, m.Update(9))
	is.Equal(9.0, m.Update(100)) // window [1 9 100]
}

func TestMedianFilterZeroWindowBehavesAsOne(t *testing.T) {
	is := is.New(t)
	m := NewMedianFilter(0)

	is.Equal(3.0, m.Update(3))
	is.Equal(7.0, m.Update(7))
}

func TestEMAFilterSeedsWithFirstSample(t *testing.T) {
	is := is.New(t)
	e := NewEMAFilter(0.5)

	is.Equal(10.0, e.Update(10))
	is.Equal(15.0, e.Update(20))
	is.Equal(17.5, e.Update(20))
}

func TestEvaluateThresholdHysteresis(t *testing.T) {
	is := is.New(t)
	th := thresholds(10, 20)

	expected := []string{"low", "low", "ok", "ok", "low"}
	values := []float64{5, 15, 25, 15, 5}

	state := ""
	for i, v := range values {
		state = EvaluateThreshold(v, th, state)
		is.Equal(expected[i], state)
	}
}

func TestEvaluateThresholdStaysStableInsideBand(t *testing.T) {
	is := is.New(t)
	th := thresholds(10, 20)

	state := EvaluateThreshold(25, th, "")
	is.Equal(types.StateOK, state)

	for i := 0; i < 50; i++ {
		state = EvaluateThreshold(15, th, state)
		is.Equal(types.StateOK, state)
	}
}

func TestEvaluateThresholdInvertedBandKeepsLastState(t *testing.T) {
	is := is.New(t)
	th := thresholds(20, 10)

	is.Equal(types.StateOK, EvaluateThreshold(5, th, ""))
	is.Equal(types.StateLow, EvaluateThreshold(5, th, types.StateLow))
}

func TestEvaluateThresholdMissingThresholds(t *testing.T) {
	is := is.New(t)

	is.Equal(types.StateOK, EvaluateThreshold(5, nil, ""))
	is.Equal(types.StateLow, EvaluateThreshold(5, &types.Thresholds{}, types.StateLow))
}

func TestProcessorAnalogReportOnChange(t *testing.T) {
	is := is.New(t)

	p := New(Config{
		SensorID:           "bin-01",
		Mode:               ModeAnalog,
		Thresholds:         thresholds(10, 20),
		ReportOnChangeOnly: true,
	})

	r := p.Process(5, 5, at(0), "2025-01-01T00:00:00Z")
	is.True(r != nil)
	is.Equal(types.StateLow, r.State)

	r = p.Process(50, 50, at(200), "2025-01-01T00:00:01Z")
	is.True(r != nil)
	is.Equal(types.StateOK, r.State)

	// median of [5 50 15] is 15, inside the band: still ok, suppressed
	r = p.Process(15, 15, at(400), "2025-01-01T00:00:02Z")
	is.Equal((*types.Reading)(nil), r)
}

func TestProcessorAnalogReportsEverySampleWhenNotChangeOnly(t *testing.T) {
	is := is.New(t)

	p := New(Config{
		SensorID:   "bin-01",
		Mode:       ModeAnalog,
		Thresholds: thresholds(10, 20),
	})

	is.True(p.Process(5, 5, at(0), "2025-01-01T00:00:00Z") != nil)
	is.True(p.Process(5, 5, at(200), "2025-01-01T00:00:01Z") != nil)
}

func TestProcessorDigitalStateMap(t *testing.T) {
	is := is.New(t)

	p := New(Config{
		SensorID:   "door-01",
		Mode:       ModeDigital,
		DebounceMs: 50,
		StateMap:   map[string]string{"on": "ok", "off": "low"},
	})

	r := p.Process(1, 1, at(0), "2025-01-01T00:00:00Z")
	is.True(r != nil)
	is.Equal(types.StateOK, r.State)

	p.Process(0, 0, at(100), "2025-01-01T00:00:01Z")
	r = p.Process(0, 0, at(200), "2025-01-01T00:00:02Z")
	is.True(r != nil)
	is.Equal(types.StateLow, r.State)
}

func TestProcessorDigitalDefaultStateMap(t *testing.T) {
	is := is.New(t)

	p := New(Config{SensorID: "door-01", Mode: ModeDigital, DebounceMs: 50})

	r := p.Process(0, 0, at(0), "2025-01-01T00:00:00Z")
	is.True(r != nil)
	is.Equal(types.StateOut, r.State)
}
