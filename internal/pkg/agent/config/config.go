package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/processing"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/sensors"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Device struct {
	ID       string `json:"id"`
	Location string `json:"location,omitempty"`
	Firmware string `json:"firmware,omitempty"`
}

type Network struct {
	BaseURL               string `json:"base_url"`
	APIToken              string `json:"api_token,omitempty"`
	CACertPath            string `json:"ca_cert_path,omitempty"`
	BatchSize             int    `json:"batch_size,omitempty"`
	FlushIntervalSeconds  int    `json:"flush_interval_seconds,omitempty"`
	RetryMaxSeconds       int    `json:"retry_max_seconds,omitempty"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds,omitempty"`
	ReadTimeoutSeconds    int    `json:"read_timeout_seconds,omitempty"`
}

type Storage struct {
	QueueDBPath        string `json:"queue_db_path"`
	MaxQueueRows       int    `json:"max_queue_rows,omitempty"`
	MaxQueueAgeSeconds int    `json:"max_queue_age_seconds,omitempty"`
}

type Runtime struct {
	PollIntervalMs     int   `json:"poll_interval_ms,omitempty"`
	ReportOnChangeOnly *bool `json:"report_on_change_only,omitempty"`
}

type Sensor struct {
	sensors.Config

	DebounceMs         int               `json:"debounce_ms,omitempty"`
	Thresholds         *types.Thresholds `json:"thresholds,omitempty"`
	StateMap           map[string]string `json:"state_map,omitempty"`
	ReportOnChangeOnly *bool             `json:"report_on_change_only,omitempty"`
	Filter             string            `json:"filter,omitempty"`
	Alpha              float64           `json:"alpha,omitempty"`
}

// EffectiveMode falls back to the sensor type when no mode is configured:
// gpio inputs are digital, everything else analog.
func (s Sensor) EffectiveMode() string {
	if s.Mode != "" {
		return s.Mode
	}
	if s.Type == "digital_gpio" {
		return processing.ModeDigital
	}
	return processing.ModeAnalog
}

func (s Sensor) EffectiveReportOnChange(rt Runtime) bool {
	if s.ReportOnChangeOnly != nil {
		return *s.ReportOnChangeOnly
	}
	if rt.ReportOnChangeOnly != nil {
		return *rt.ReportOnChangeOnly
	}
	return true
}

type AppConfig struct {
	Device  Device   `json:"device"`
	Network Network  `json:"network"`
	Storage Storage  `json:"storage"`
	Runtime Runtime  `json:"runtime"`
	Sensors []Sensor `json:"sensors"`
}

// Load reads a JSON configuration, substitutes env:NAME string values from
// the environment, applies defaults and validates required fields.
func Load(r io.Reader) (*AppConfig, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration: %w", err)
	}

	var raw any
	err = json.Unmarshal(b, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	resolved, err := json.Marshal(resolveEnv(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	cfg := &AppConfig{}
	err = json.Unmarshal(resolved, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	cfg.applyDefaults()

	err = cfg.validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*AppConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open configuration file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// resolveEnv walks the decoded document and substitutes string values of the
// form env:NAME with the value of that environment variable. Missing
// variables resolve to the empty string rather than an error.
func resolveEnv(value any) any {
	switch v := value.(type) {
	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, item := range v {
			resolved[key] = resolveEnv(item)
		}
		return resolved
	case []any:
		resolved := make([]any, len(v))
		for i, item := range v {
			resolved[i] = resolveEnv(item)
		}
		return resolved
	case string:
		if name, found := strings.CutPrefix(v, "env:"); found {
			return os.Getenv(name)
		}
		return v
	}
	return value
}

func (c *AppConfig) applyDefaults() {
	if c.Device.Firmware == "" {
		c.Device.Firmware = "0.1.0"
	}
	if c.Network.BatchSize <= 0 {
		c.Network.BatchSize = 25
	}
	if c.Network.FlushIntervalSeconds <= 0 {
		c.Network.FlushIntervalSeconds = 15
	}
	if c.Network.RetryMaxSeconds <= 0 {
		c.Network.RetryMaxSeconds = 300
	}
	if c.Network.ConnectTimeoutSeconds <= 0 {
		c.Network.ConnectTimeoutSeconds = 5
	}
	if c.Network.ReadTimeoutSeconds <= 0 {
		c.Network.ReadTimeoutSeconds = 10
	}
	if c.Runtime.PollIntervalMs <= 0 {
		c.Runtime.PollIntervalMs = 200
	}

	for i := range c.Sensors {
		if c.Sensors[i].DebounceMs <= 0 {
			c.Sensors[i].DebounceMs = 100
		}
	}
}

func (c *AppConfig) validate() error {
	if c.Device.ID == "" {
		return fmt.Errorf("%w: device.id is required", ErrInvalidConfig)
	}
	if c.Network.BaseURL == "" {
		return fmt.Errorf("%w: network.base_url is required", ErrInvalidConfig)
	}
	if c.Storage.QueueDBPath == "" {
		return fmt.Errorf("%w: storage.queue_db_path is required", ErrInvalidConfig)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("%w: at least one sensor is required", ErrInvalidConfig)
	}
	return nil
}
