package types

// Sensor states shared by the agent classifier and the server alert logic.
// Configurations may map digital sensors to other labels, so these are
// conventions rather than an exhaustive set.
const (
	StateOK  string = "ok"
	StateLow string = "low"
	StateOut string = "out"
)

// Thresholds define the hysteresis band for analog sensors. A value below
// Low classifies as low, a value at or above OK classifies as ok, and values
// in between keep the previous state.
type Thresholds struct {
	Low *float64 `json:"low,omitempty" yaml:"low,omitempty"`
	OK  *float64 `json:"ok,omitempty" yaml:"ok,omitempty"`
}

// Reading is one classified sensor observation as it travels over the wire.
// LocalSeq is assigned by the device outbox and is the identity used for
// acks and server side idempotency.
type Reading struct {
	LocalSeq        uint64   `json:"seq_id"`
	SensorID        string   `json:"sensor_id"`
	Timestamp       string   `json:"ts"`
	RawValue        *float64 `json:"raw_value"`
	NormalizedValue *float64 `json:"normalized_value"`
	State           string   `json:"state"`
}

// SensorMeta describes a sensor's configuration as reported by the device.
// Accepted on ingest but not yet persisted by the server.
type SensorMeta struct {
	SensorID   string            `json:"sensor_id"`
	Type       string            `json:"type"`
	Thresholds *Thresholds       `json:"thresholds,omitempty"`
	StateMap   map[string]string `json:"state_map,omitempty"`
}

// ReadingsBatch is the payload of POST /api/v1/readings/batch.
type ReadingsBatch struct {
	DeviceID   string       `json:"device_id"`
	Firmware   string       `json:"firmware,omitempty"`
	SentAt     string       `json:"sent_at,omitempty"`
	Readings   []Reading    `json:"readings"`
	SensorMeta []SensorMeta `json:"sensor_meta,omitempty"`
}

// BatchResponse acknowledges a batch. AckSeqID is the highest local sequence
// id the server has accepted; the device truncates its outbox up to and
// including it. A nil AckSeqID means the batch contained no readings.
type BatchResponse struct {
	AckSeqID   *uint64 `json:"ack_seq_id"`
	ServerTime string  `json:"server_time"`
}
