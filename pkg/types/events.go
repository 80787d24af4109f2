package types

// Event is a live update fanned out to stream subscribers and webhook
// notification targets.
type Event interface {
	EventType() string
}

type ItemStatusUpdate struct {
	SensorID        string   `json:"sensor_id"`
	ItemID          *string  `json:"item_id"`
	State           string   `json:"state"`
	NormalizedValue *float64 `json:"normalized_value"`
	Timestamp       string   `json:"ts"`
}

func (ItemStatusUpdate) EventType() string {
	return "item_status_update"
}

type AlertCreated struct {
	AlertID   uint    `json:"alert_id"`
	SensorID  string  `json:"sensor_id"`
	ItemID    *string `json:"item_id"`
	State     string  `json:"state"`
	Message   string  `json:"message"`
	CreatedAt string  `json:"created_at"`
}

func (AlertCreated) EventType() string {
	return "alert_created"
}

type AlertResolved struct {
	SensorID   string  `json:"sensor_id"`
	ItemID     *string `json:"item_id"`
	ResolvedAt string  `json:"resolved_at"`
}

func (AlertResolved) EventType() string {
	return "alert_resolved"
}

type AlertAcknowledged struct {
	AlertID        uint   `json:"alert_id"`
	AcknowledgedAt string `json:"acknowledged_at"`
}

func (AlertAcknowledged) EventType() string {
	return "alert_acknowledged"
}
