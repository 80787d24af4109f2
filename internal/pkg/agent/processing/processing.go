package processing

import (
	"sort"
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

// Debouncer suppresses transient flips on digital inputs. A changed value is
// only emitted once it has stayed unchanged for the configured interval.
type Debouncer struct {
	interval   time.Duration
	lastRaw    int
	lastChange time.Time
	stable     int
	primed     bool
}

func NewDebouncer(debounceMs int) *Debouncer {
	return &Debouncer{
		interval: time.Duration(debounceMs) * time.Millisecond,
	}
}

// Update feeds one sample and reports whether a new stable value was
// produced. The first sample is emitted immediately.
func (d *Debouncer) Update(value int, now time.Time) (int, bool) {
	if !d.primed {
		d.primed = true
		d.stable = value
		d.lastRaw = value
		d.lastChange = now
		return value, true
	}

	if value != d.lastRaw {
		d.lastRaw = value
		d.lastChange = now
		return 0, false
	}

	if d.stable != value && now.Sub(d.lastChange) >= d.interval {
		d.stable = value
		return value, true
	}

	return 0, false
}

// MedianFilter is a sliding window median. For even window sizes the upper
// middle of the sorted window is returned.
type MedianFilter struct {
	window []float64
	size   int
}

func NewMedianFilter(windowSize int) *MedianFilter {
	if windowSize < 1 {
		windowSize = 1
	}
	return &MedianFilter{size: windowSize}
}

func (m *MedianFilter) Update(value float64) float64 {
	if len(m.window) == m.size {
		m.window = m.window[1:]
	}
	m.window = append(m.window, value)

	ordered := make([]float64, len(m.window))
	copy(ordered, m.window)
	sort.Float64s(ordered)

	return ordered[len(ordered)/2]
}

// EMAFilter is an exponential moving average seeded with the first sample.
type EMAFilter struct {
	alpha  float64
	value  float64
	primed bool
}

func NewEMAFilter(alpha float64) *EMAFilter {
	return &EMAFilter{alpha: alpha}
}

func (e *EMAFilter) Update(value float64) float64 {
	if !e.primed {
		e.primed = true
		e.value = value
		return value
	}
	e.value = e.alpha*value + (1-e.alpha)*e.value
	return e.value
}

// EvaluateThreshold classifies a filtered value against a hysteresis band.
// lastState is empty before any classification has happened. Values inside
// the band keep the last state, except that with no history the band
// classifies as low so that under stocked bins alert on first observation.
func EvaluateThreshold(value float64, thresholds *types.Thresholds, lastState string) string {
	if thresholds == nil || thresholds.Low == nil || thresholds.OK == nil {
		return stateOr(lastState, types.StateOK)
	}

	low, ok := *thresholds.Low, *thresholds.OK
	if low >= ok {
		return stateOr(lastState, types.StateOK)
	}

	if lastState == types.StateLow && value >= ok {
		return types.StateOK
	}
	if lastState == types.StateOK && value < low {
		return types.StateLow
	}
	if value < low {
		return types.StateLow
	}
	if value >= ok {
		return types.StateOK
	}

	return stateOr(lastState, types.StateLow)
}

func stateOr(state, fallback string) string {
	if state == "" {
		return fallback
	}
	return state
}
