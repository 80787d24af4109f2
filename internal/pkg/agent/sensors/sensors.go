package sensors

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/periph/host"
)

// Sample is one raw observation paired with its normalized value. For load
// cells Raw is the ADC count and Normalized the tared, scaled weight; for
// digital inputs both carry the logical 0/1.
type Sample struct {
	Raw        float64
	Normalized float64
}

// Driver is the uniform capability all sensor hardware is reduced to. Read
// returns false when no sample is available this tick, which is not an
// error. Errors are treated by the caller as "no sample" as well, but are
// worth logging.
type Driver interface {
	ID() string
	Read() (Sample, bool, error)
}

// Config selects and parameterizes a driver. Unknown fields for the chosen
// type are ignored.
type Config struct {
	SensorID string `json:"id"`
	Type     string `json:"type"`

	// digital_gpio
	Pin        string `json:"pin"`
	ActiveHigh *bool  `json:"active_high"`
	Pull       string `json:"pull"`

	// file_sensor
	Path string `json:"path"`
	Mode string `json:"mode"`

	// hx711
	DoutPin  string `json:"dout_pin"`
	SckPin   string `json:"sck_pin"`
	Readings int    `json:"readings"`
	Gain     int    `json:"gain"`

	// shared by file_sensor and hx711
	ScaleFactor float64 `json:"scale_factor"`
	TareOffset  float64 `json:"tare_offset"`
}

var ErrUnsupportedType = errors.New("unsupported sensor type")

var hostInit sync.Once

func initHost() error {
	var err error
	hostInit.Do(func() {
		_, err = host.Init()
	})
	return err
}

// New creates the driver named by cfg.Type.
func New(cfg Config) (Driver, error) {
	switch cfg.Type {
	case "digital_gpio":
		return newDigitalGPIO(cfg)
	case "file_sensor":
		return newFileSensor(cfg)
	case "hx711":
		return newHX711(cfg)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
}
