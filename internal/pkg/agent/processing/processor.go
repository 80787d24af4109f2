package processing

import (
	"time"

	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

const (
	ModeDigital string = "digital"
	ModeAnalog  string = "analog"

	FilterMedian string = "median"
	FilterEMA    string = "ema"
)

const defaultMedianWindow = 5

type Config struct {
	SensorID           string
	Mode               string
	DebounceMs         int
	Thresholds         *types.Thresholds
	StateMap           map[string]string
	ReportOnChangeOnly bool
	Filter             string
	Alpha              float64
}

type analogFilter interface {
	Update(value float64) float64
}

// Processor turns raw samples from a single sensor into classified readings.
// It is stateful and must only be used from the polling loop.
type Processor struct {
	sensorID           string
	mode               string
	thresholds         *types.Thresholds
	stateMap           map[string]string
	reportOnChangeOnly bool

	debouncer *Debouncer
	filter    analogFilter

	lastState    string
	lastReported string
}

func New(cfg Config) *Processor {
	p := &Processor{
		sensorID:           cfg.SensorID,
		mode:               cfg.Mode,
		thresholds:         cfg.Thresholds,
		stateMap:           cfg.StateMap,
		reportOnChangeOnly: cfg.ReportOnChangeOnly,
	}

	if cfg.Mode == ModeDigital {
		p.debouncer = NewDebouncer(cfg.DebounceMs)
		return p
	}

	if cfg.Filter == FilterEMA {
		alpha := cfg.Alpha
		if alpha <= 0 || alpha > 1 {
			alpha = 0.3
		}
		p.filter = NewEMAFilter(alpha)
	} else {
		p.filter = NewMedianFilter(defaultMedianWindow)
	}

	return p
}

// Process feeds one sample and returns a reading to enqueue, or nil when
// this tick produced nothing (debounce suppression, unchanged state with
// report on change enabled).
func (p *Processor) Process(raw, normalized float64, now time.Time, timestamp string) *types.Reading {
	var state string

	if p.mode == ModeDigital {
		stable, changed := p.debouncer.Update(digitalValue(normalized), now)
		if !changed {
			return nil
		}
		normalized = float64(stable)
		state = p.stateFromDigital(stable)
	} else {
		normalized = p.filter.Update(normalized)
		state = p.stateFromThresholds(normalized)
	}

	p.lastState = state

	if p.reportOnChangeOnly && p.lastReported == state {
		return nil
	}
	p.lastReported = state

	return &types.Reading{
		SensorID:        p.sensorID,
		Timestamp:       timestamp,
		RawValue:        &raw,
		NormalizedValue: &normalized,
		State:           state,
	}
}

func (p *Processor) stateFromDigital(stable int) string {
	key, fallback := "off", types.StateOut
	if stable != 0 {
		key, fallback = "on", types.StateOK
	}

	if mapped, found := p.stateMap[key]; found {
		return mapped
	}
	return fallback
}

func (p *Processor) stateFromThresholds(value float64) string {
	if p.thresholds == nil {
		return stateOr(p.lastState, types.StateOK)
	}
	return EvaluateThreshold(value, p.thresholds, p.lastState)
}

func digitalValue(normalized float64) int {
	if normalized != 0 {
		return 1
	}
	return 0
}
