package domain

import (
	"encoding/json"
	"time"
)

// Push event names on the websocket channel and the fan-out bus.
const (
	PushNew      = "notification:new"
	PushAck      = "notification:ack"
	PushResolved = "notification:resolved"
)

// Envelope is the wire frame for every server push.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope marshals an envelope for event with v as data.
func NewEnvelope(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// TransitionEvent announces a lifecycle change. On the websocket only the
// id is pushed; the event name carries the state. On the bus the full
// struct travels so receiving instances can pick the event name.
type TransitionEvent struct {
	ID    int64     `json:"id"`
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// PushName returns the websocket event name for the transition.
func (e TransitionEvent) PushName() string {
	if e.State == StateResolved {
		return PushResolved
	}
	return PushAck
}

// TransitionRef is the id-only websocket payload of a lifecycle push.
type TransitionRef struct {
	ID int64 `json:"id"`
}

// SubscribeContext declares which scope channels a connection wants.
// Re-submitting it replaces all prior memberships.
type SubscribeContext struct {
	Station string   `json:"station,omitempty"`
	Routes  []string `json:"routes,omitempty"`
	Flights []string `json:"flights,omitempty"`
}

// Channels expands the context into scope channel names.
func (s SubscribeContext) Channels() []string {
	var out []string
	if s.Station != "" {
		out = append(out, "station:"+s.Station)
	}
	for _, r := range s.Routes {
		if r != "" {
			out = append(out, "route:"+r)
		}
	}
	for _, f := range s.Flights {
		if f != "" {
			out = append(out, "flight:"+f)
		}
	}
	return out
}

// ScopeChannels returns the channels a stored record fans out to. Empty
// means the record is unscoped and must be broadcast to every connection.
func (n *Notification) ScopeChannels() []string {
	var out []string
	if n.Station != "" {
		out = append(out, "station:"+n.Station)
	}
	if n.Route != "" {
		out = append(out, "route:"+n.Route)
	}
	if n.Flight != "" {
		out = append(out, "flight:"+n.Flight)
	}
	return out
}
