package sensors

import (
	"os"
	"strconv"
	"strings"
)

// fileSensor reads a numeric value from a plain text file. Used for sensors
// exposed through sysfs and for simulated hardware in development.
type fileSensor struct {
	sensorID    string
	path        string
	digital     bool
	scaleFactor float64
	tareOffset  float64
}

func newFileSensor(cfg Config) (Driver, error) {
	scale := cfg.ScaleFactor
	if scale == 0 {
		scale = 1.0
	}

	return &fileSensor{
		sensorID:    cfg.SensorID,
		path:        cfg.Path,
		digital:     cfg.Mode == "digital",
		scaleFactor: scale,
		tareOffset:  cfg.TareOffset,
	}, nil
}

func (f *fileSensor) ID() string {
	return f.sensorID
}

func (f *fileSensor) Read() (Sample, bool, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		// a missing file means no sample, not a failure
		if os.IsNotExist(err) {
			return Sample{}, false, nil
		}
		return Sample{}, false, err
	}

	trimmed := strings.TrimSpace(string(content))
	if trimmed == "" {
		return Sample{}, false, nil
	}

	raw, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return Sample{}, false, nil
	}

	if f.digital {
		value := 0.0
		if raw != 0 {
			value = 1.0
		}
		return Sample{Raw: value, Normalized: value}, true, nil
	}

	return Sample{
		Raw:        raw,
		Normalized: (raw - f.tareOffset) / f.scaleFactor,
	}, true, nil
}
