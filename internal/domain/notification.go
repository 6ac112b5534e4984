package domain

import (
	"encoding/json"
	"time"
)

// EventType is the closed set of operational events the intake API accepts.
type EventType string

const (
	EventSpecChange   EventType = "SpecChange"
	EventSubstitution EventType = "Substitution"
	EventExpirySoon   EventType = "ExpirySoon"
	EventStockOut     EventType = "StockOut"
	EventPrediction   EventType = "PredictionRule"
)

// Severity of an alert. Fixed per event type, never user-settable.
type Severity string

const (
	SeverityUrgent Severity = "urgent"
	SeverityHigh   Severity = "high"
	SeverityInfo   Severity = "info"
)

// SeverityFor maps an event type to its fixed severity.
func SeverityFor(t EventType) Severity {
	switch t {
	case EventExpirySoon:
		return SeverityUrgent
	case EventPrediction:
		return SeverityInfo
	default:
		return SeverityHigh
	}
}

// State is the lifecycle state of an alert.
type State string

const (
	StateNew      State = "new"
	StateAck      State = "ack"
	StateResolved State = "resolved"
)

// StateRank orders lifecycle states. Transitions are only legal in the
// direction of increasing rank; new -> resolved (skipping ack) is legal.
func StateRank(s State) int {
	switch s {
	case StateAck:
		return 1
	case StateResolved:
		return 2
	default:
		return 0
	}
}

// ValidState reports whether s is a known lifecycle state.
func ValidState(s State) bool {
	return s == StateNew || s == StateAck || s == StateResolved
}

// Notification is the durable record of one alert.
type Notification struct {
	ID          int64     `json:"id"`
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	Station     string    `json:"station,omitempty"`
	Route       string    `json:"route,omitempty"`
	Flight      string    `json:"flight,omitempty"`
	Drawer      string    `json:"drawer,omitempty"`
	ProductCode string    `json:"productCode,omitempty"`
	Payload     Payload   `json:"payload"`
	// DeadlineTs is epoch milliseconds; only meaningful for event types
	// with a cutoff.
	DeadlineTs     *int64     `json:"deadlineTs,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	State          State      `json:"state"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

// UnmarshalJSON decodes the record, dispatching the payload to the typed
// shape selected by the record's event type.
func (n *Notification) UnmarshalJSON(b []byte) error {
	type alias Notification
	aux := struct {
		*alias
		Payload json.RawMessage `json:"payload"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if len(aux.Payload) > 0 {
		p, err := DecodePayload(n.Type, aux.Payload)
		if err != nil {
			return err
		}
		n.Payload = p
	}
	return nil
}

// Clone returns a copy safe for the reconciliation view to mutate: pointer
// timestamps are copied by value, the payload detail is shared (immutable
// after creation).
func (n *Notification) Clone() *Notification {
	c := *n
	if n.DeadlineTs != nil {
		v := *n.DeadlineTs
		c.DeadlineTs = &v
	}
	if n.AcknowledgedAt != nil {
		v := *n.AcknowledgedAt
		c.AcknowledgedAt = &v
	}
	if n.ResolvedAt != nil {
		v := *n.ResolvedAt
		c.ResolvedAt = &v
	}
	return &c
}
