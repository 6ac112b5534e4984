// Package format renders a stored alert into the one-line operator message.
// Every substitution path has a fallback literal, so rendering is total:
// an empty payload still yields a readable sentence.
package format

import (
	"fmt"
	"strings"
	"time"

	"alert-service/internal/domain"
)

// Fallback literals, in the floor operators' language.
const (
	fallbackProduct    = "producto"
	fallbackSubstitute = "sustituto"
	fallbackDrawer     = "carrito"
	fallbackRoute      = "ruta"
	fallbackFlight     = "vuelo"
	fallbackStation    = "estación"
	fallbackDate       = "pronto"
	fallbackItem       = "ítem"
	fallbackAdvice     = "ajuste recomendado"
	fallbackMessage    = "Revisión requerida."
)

// Message renders the human-readable summary for an alert payload. Pure:
// same inputs always produce the same string.
func Message(t domain.EventType, p domain.Payload) string {
	switch d := p.Data.(type) {
	case *domain.SpecChangeDetail:
		return specChange(d)
	case *domain.ExpirySoonDetail:
		return expirySoon(d)
	case *domain.SubstitutionDetail:
		return substitution(d)
	case *domain.StockOutDetail:
		return stockOut(d)
	case *domain.PredictionDetail:
		return prediction(d)
	}
	if p.Message != "" {
		return p.Message
	}
	return fallbackMessage
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func specChange(d *domain.SpecChangeDetail) string {
	before := "un producto"
	if d.Before != nil && d.Before.Name != "" {
		before = d.Before.Name
	}
	after := "otro producto"
	if d.After != nil && d.After.Name != "" {
		after = d.After.Name
	}
	return fmt.Sprintf("En %s del %s (%s) en %s: cambia %s por %s.",
		or(d.Drawer, fallbackDrawer),
		or(d.Flight, fallbackFlight),
		or(d.Route, fallbackRoute),
		or(d.Station, fallbackStation),
		before, after)
}

func expirySoon(d *domain.ExpirySoonDetail) string {
	prod := or(d.ProductName, or(d.ProductCode, fallbackProduct))
	lot := ""
	if d.Lot != "" {
		lot = fmt.Sprintf(" (lote %s)", d.Lot)
	}
	return fmt.Sprintf("%s%s está por caducar. Retira o reemplaza antes de %s.",
		prod, lot, cutDate(d.CutDate))
}

// cutDate reformats an RFC3339 cutoff for display; a value that does not
// parse is shown as sent, an absent one falls back to "soon".
func cutDate(raw string) string {
	if raw == "" {
		return fallbackDate
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.Format("02/01/2006 15:04")
	}
	return raw
}

func substitution(d *domain.SubstitutionDetail) string {
	product := or(d.ProductName, or(d.ProductCode, fallbackProduct))
	substitute := or(d.SubstituteName, or(d.SubstituteCode, fallbackSubstitute))

	route := d.Route
	flights := d.Flight
	if d.Scope != nil {
		if route == "" {
			route = d.Scope.Route
		}
		if flights == "" && len(d.Scope.Flights) > 0 {
			flights = strings.Join(d.Scope.Flights, ", ")
		}
	}

	var parts []string
	if route != "" {
		parts = append(parts, route)
	}
	if flights != "" {
		parts = append(parts, "vuelos "+flights)
	}
	msg := fmt.Sprintf("Sustituir %s por %s", product, substitute)
	if len(parts) > 0 {
		msg += " — " + strings.Join(parts, " · ")
	}
	return msg + "."
}

func stockOut(d *domain.StockOutDetail) string {
	prod := or(d.ProductName, or(d.ProductCode, fallbackProduct))
	var parts []string
	if d.Station != "" {
		parts = append(parts, d.Station)
	}
	if d.Route != "" {
		parts = append(parts, d.Route)
	}
	msg := prod + " sin stock"
	if len(parts) > 0 {
		msg += " en " + strings.Join(parts, " · ")
	}
	return msg + ". Aplica sustitución o ajusta cantidades."
}

func prediction(d *domain.PredictionDetail) string {
	what := or(d.ItemName, or(d.Drawer, fallbackItem))
	advice := or(d.Recommendation, fallbackAdvice)
	var parts []string
	if d.Route != "" {
		parts = append(parts, d.Route)
	}
	if d.Shift != "" {
		parts = append(parts, "turno "+d.Shift)
	}
	msg := fmt.Sprintf("%s: %s", what, advice)
	if len(parts) > 0 {
		msg += " — " + strings.Join(parts, " · ")
	}
	return msg + "."
}
