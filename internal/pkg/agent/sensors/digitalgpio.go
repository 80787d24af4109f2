package sensors

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

type digitalGPIO struct {
	sensorID   string
	pin        gpio.PinIn
	activeHigh bool
}

func newDigitalGPIO(cfg Config) (Driver, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("gpio host init failed: %w", err)
	}

	pin := gpioreg.ByName(cfg.Pin)
	if pin == nil {
		return nil, fmt.Errorf("no such gpio pin: %s", cfg.Pin)
	}

	pull := gpio.PullUp
	switch cfg.Pull {
	case "down":
		pull = gpio.PullDown
	case "none":
		pull = gpio.Float
	}

	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure pin %s: %w", cfg.Pin, err)
	}

	activeHigh := true
	if cfg.ActiveHigh != nil {
		activeHigh = *cfg.ActiveHigh
	}

	return &digitalGPIO{
		sensorID:   cfg.SensorID,
		pin:        pin,
		activeHigh: activeHigh,
	}, nil
}

func (d *digitalGPIO) ID() string {
	return d.sensorID
}

func (d *digitalGPIO) Read() (Sample, bool, error) {
	level := d.pin.Read() == gpio.High
	if !d.activeHigh {
		level = !level
	}

	value := 0.0
	if level {
		value = 1.0
	}

	return Sample{Raw: value, Normalized: value}, true, nil
}
