package sensors

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

// hx711 drives an HX711 24-bit load cell ADC by bit banging its serial
// protocol: data is clocked out MSB first on DOUT by pulsing SCK, followed
// by 1-3 extra pulses that select gain and channel for the next conversion.
type hx711 struct {
	sensorID    string
	dout        gpio.PinIn
	sck         gpio.PinOut
	gainPulses  int
	readings    int
	scaleFactor float64
	tareOffset  float64
}

const hx711ReadyTimeout = 200 * time.Millisecond

func newHX711(cfg Config) (Driver, error) {
	if err := initHost(); err != nil {
		return nil, fmt.Errorf("gpio host init failed: %w", err)
	}

	dout := gpioreg.ByName(cfg.DoutPin)
	if dout == nil {
		return nil, fmt.Errorf("no such gpio pin: %s", cfg.DoutPin)
	}
	sck := gpioreg.ByName(cfg.SckPin)
	if sck == nil {
		return nil, fmt.Errorf("no such gpio pin: %s", cfg.SckPin)
	}

	if err := dout.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure dout pin %s: %w", cfg.DoutPin, err)
	}
	if err := sck.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure sck pin %s: %w", cfg.SckPin, err)
	}

	gainPulses := 1
	switch cfg.Gain {
	case 32:
		gainPulses = 2
	case 64:
		gainPulses = 3
	}

	readings := cfg.Readings
	if readings < 1 {
		readings = 5
	}

	scale := cfg.ScaleFactor
	if scale == 0 {
		scale = 1.0
	}

	return &hx711{
		sensorID:    cfg.SensorID,
		dout:        dout,
		sck:         sck,
		gainPulses:  gainPulses,
		readings:    readings,
		scaleFactor: scale,
		tareOffset:  cfg.TareOffset,
	}, nil
}

func (h *hx711) ID() string {
	return h.sensorID
}

func (h *hx711) Read() (Sample, bool, error) {
	sum := 0.0
	count := 0

	for i := 0; i < h.readings; i++ {
		value, ok, err := h.readRaw()
		if err != nil {
			return Sample{}, false, err
		}
		if !ok {
			continue
		}
		sum += float64(value)
		count++
	}

	if count == 0 {
		return Sample{}, false, nil
	}

	raw := sum / float64(count)

	return Sample{
		Raw:        raw,
		Normalized: (raw - h.tareOffset) / h.scaleFactor,
	}, true, nil
}

func (h *hx711) readRaw() (int32, bool, error) {
	if !h.waitReady() {
		return 0, false, nil
	}

	var value uint32
	for i := 0; i < 24; i++ {
		if err := h.pulse(); err != nil {
			return 0, false, err
		}
		value <<= 1
		if h.dout.Read() == gpio.High {
			value |= 1
		}
	}

	for i := 0; i < h.gainPulses; i++ {
		if err := h.pulse(); err != nil {
			return 0, false, err
		}
	}

	// sign extend the 24 bit two's complement result
	if value&0x800000 != 0 {
		value |= 0xFF000000
	}

	return int32(value), true, nil
}

// waitReady polls for DOUT going low, which signals that a conversion is
// available.
func (h *hx711) waitReady() bool {
	deadline := time.Now().Add(hx711ReadyTimeout)
	for h.dout.Read() == gpio.High {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Microsecond)
	}
	return true
}

func (h *hx711) pulse() error {
	if err := h.sck.Out(gpio.High); err != nil {
		return err
	}
	return h.sck.Out(gpio.Low)
}
