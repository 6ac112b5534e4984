package domain

import "encoding/json"

// Payload carries the per-type alert detail, the derived human-readable
// message, and any passthrough fields the producer sent beyond the typed
// shape.
type Payload struct {
	Message string
	Data    any
	Extra   map[string]any
}

// ProductRef identifies a product inside a spec-change body.
type ProductRef struct {
	ProductCode string `json:"productCode,omitempty"`
	Name        string `json:"name,omitempty"`
}

// SpecChangeDetail is the payload shape for SpecChange events.
type SpecChangeDetail struct {
	Drawer  string      `json:"drawer,omitempty"`
	Route   string      `json:"route,omitempty"`
	Flight  string      `json:"flight,omitempty"`
	Station string      `json:"station,omitempty"`
	Before  *ProductRef `json:"before,omitempty"`
	After   *ProductRef `json:"after,omitempty"`
}

// ExpirySoonDetail is the payload shape for ExpirySoon events. CutDate is
// kept as the producer sent it (RFC3339 expected, best effort otherwise).
type ExpirySoonDetail struct {
	ProductCode string `json:"productCode,omitempty"`
	ProductName string `json:"productName,omitempty"`
	Lot         string `json:"lot,omitempty"`
	CutDate     string `json:"cutDate,omitempty"`
	Route       string `json:"route,omitempty"`
	Station     string `json:"station,omitempty"`
}

// SubstitutionScope narrows a substitution to a route and a set of flights.
type SubstitutionScope struct {
	Route   string   `json:"route,omitempty"`
	Flights []string `json:"flights,omitempty"`
}

// SubstitutionDetail is the payload shape for Substitution events.
type SubstitutionDetail struct {
	ProductCode    string             `json:"productCode,omitempty"`
	ProductName    string             `json:"productName,omitempty"`
	SubstituteCode string             `json:"substituteCode,omitempty"`
	SubstituteName string             `json:"substituteName,omitempty"`
	Route          string             `json:"route,omitempty"`
	Flight         string             `json:"flight,omitempty"`
	Scope          *SubstitutionScope `json:"scope,omitempty"`
}

// StockOutDetail is the payload shape for StockOut events.
type StockOutDetail struct {
	Route       string `json:"route,omitempty"`
	Station     string `json:"station,omitempty"`
	ProductCode string `json:"productCode,omitempty"`
	ProductName string `json:"productName,omitempty"`
}

// PredictionDetail is the payload shape for PredictionRule events.
type PredictionDetail struct {
	Route          string `json:"route,omitempty"`
	Drawer         string `json:"drawer,omitempty"`
	ItemName       string `json:"itemName,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
	Shift          string `json:"turno,omitempty"`
}

// detailKeys lists the JSON keys owned by each typed payload shape. Keys a
// producer sends outside this set land in Payload.Extra.
var detailKeys = map[EventType]map[string]struct{}{
	EventSpecChange: {
		"drawer": {}, "route": {}, "flight": {}, "station": {},
		"before": {}, "after": {}, "deadlineTs": {},
	},
	EventExpirySoon: {
		"productCode": {}, "productName": {}, "lot": {}, "cutDate": {},
		"route": {}, "station": {},
	},
	EventSubstitution: {
		"productCode": {}, "productName": {}, "substituteCode": {},
		"substituteName": {}, "route": {}, "flight": {}, "scope": {},
	},
	EventStockOut: {
		"route": {}, "station": {}, "productCode": {}, "productName": {},
	},
	EventPrediction: {
		"route": {}, "drawer": {}, "itemName": {}, "recommendation": {}, "turno": {},
	},
}

func newDetail(t EventType) any {
	switch t {
	case EventSpecChange:
		return &SpecChangeDetail{}
	case EventExpirySoon:
		return &ExpirySoonDetail{}
	case EventSubstitution:
		return &SubstitutionDetail{}
	case EventStockOut:
		return &StockOutDetail{}
	case EventPrediction:
		return &PredictionDetail{}
	default:
		return nil
	}
}

// MarshalJSON flattens the payload to the wire shape: typed detail fields,
// extra passthrough fields, and the message at the same level.
func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if p.Data != nil {
		b, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, err
		}
	}
	for k, v := range p.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	if p.Message != "" {
		m["message"] = p.Message
	}
	return json.Marshal(m)
}

// DecodePayload parses a flat payload body into the typed shape for t,
// separating passthrough fields into Extra. A body with missing fields is
// not an error; formatting fallbacks cover the gaps.
func DecodePayload(t EventType, raw []byte) (Payload, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Payload{}, err
	}

	var p Payload
	if msg, ok := fields["message"]; ok {
		_ = json.Unmarshal(msg, &p.Message)
	}

	detail := newDetail(t)
	if detail != nil {
		if err := json.Unmarshal(raw, detail); err != nil {
			return Payload{}, err
		}
		p.Data = detail
	}

	// deadlineTs is owned by the SpecChange key set; for every other type
	// it is an ordinary passthrough field.
	known := detailKeys[t]
	for k, v := range fields {
		if k == "message" {
			continue
		}
		if _, ok := known[k]; ok {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = val
	}
	return p, nil
}

// DraftFromIntake builds an unsaved notification from a raw intake body:
// payload decoded into the typed shape, scope fields lifted onto the record
// for routing and filtering, severity fixed by type.
func DraftFromIntake(t EventType, raw []byte) (*Notification, error) {
	p, err := DecodePayload(t, raw)
	if err != nil {
		return nil, err
	}

	n := &Notification{
		Type:     t,
		Severity: SeverityFor(t),
		Payload:  p,
	}

	switch d := p.Data.(type) {
	case *SpecChangeDetail:
		n.Station = d.Station
		n.Route = d.Route
		n.Flight = d.Flight
		n.Drawer = d.Drawer
		if d.After != nil {
			n.ProductCode = d.After.ProductCode
		}
		var aux struct {
			DeadlineTs *int64 `json:"deadlineTs"`
		}
		if err := json.Unmarshal(raw, &aux); err == nil {
			n.DeadlineTs = aux.DeadlineTs
		}
	case *ExpirySoonDetail:
		n.Station = d.Station
		n.Route = d.Route
		n.ProductCode = d.ProductCode
	case *SubstitutionDetail:
		n.Route = d.Route
		n.Flight = d.Flight
		n.ProductCode = d.ProductCode
	case *StockOutDetail:
		n.Station = d.Station
		n.Route = d.Route
		n.ProductCode = d.ProductCode
	case *PredictionDetail:
		n.Route = d.Route
		n.Drawer = d.Drawer
	}
	return n, nil
}
