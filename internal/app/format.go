package app

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"hydration/internal/domain"
)

// Formatter renders water quantities for display, picking a natural scale
// within the preferred unit's measurement system and formatting numbers for
// a locale.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter returns a Formatter for the given locale.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Format renders q. Zero renders as "0".
func (f *Formatter) Format(q domain.Quantity, preferred domain.Unit) string {
	if q.Value.IsZero() {
		return "0"
	}
	switch preferred.System() {
	case domain.USCustomary:
		return f.ladder(q, domain.FluidOunceUS, domain.GallonUS, 128)
	case domain.Imperial:
		return f.ladder(q, domain.FluidOunceImperial, domain.GallonImperial, 160)
	default:
		liters := q.In(domain.Liter).Value.InexactFloat64()
		v, prefix := humanize.ComputeSI(liters)
		return f.number(v) + " " + prefix + "L"
	}
}

// ladder uses small below limit (expressed in small) and large above it.
func (f *Formatter) ladder(q domain.Quantity, small, large domain.Unit, limit int64) string {
	s := q.In(small)
	if s.Value.Abs().LessThan(decimal.NewFromInt(limit)) {
		return f.number(s.Value.InexactFloat64()) + " " + small.Symbol()
	}
	return f.number(q.In(large).Value.InexactFloat64()) + " " + large.Symbol()
}

func (f *Formatter) number(v float64) string {
	return f.printer.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(1)))
}
