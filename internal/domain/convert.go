package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit identifies a volume unit. Liters is the storage unit.
type Unit string

const (
	Milliliter         Unit = "mL"
	Liter              Unit = "L"
	FluidOunceUS       Unit = "fl_oz_us"
	FluidOunceImperial Unit = "fl_oz_imp"
	CupUS              Unit = "cup_us"
	GallonUS           Unit = "gal_us"
	GallonImperial     Unit = "gal_imp"
)

// StorageUnit is the unit repositories persist quantities in.
const StorageUnit = Liter

// ErrUnknownUnit is returned by ParseUnit for input that names no volume unit.
var ErrUnknownUnit = errors.New("unknown volume unit")

// System groups units that are displayed together when picking a natural scale.
type System int

const (
	Metric System = iota
	USCustomary
	Imperial
)

type unitInfo struct {
	liters decimal.Decimal
	symbol string
	system System
}

var units = map[Unit]unitInfo{
	Milliliter:         {decimal.RequireFromString("0.001"), "mL", Metric},
	Liter:              {decimal.NewFromInt(1), "L", Metric},
	FluidOunceUS:       {decimal.RequireFromString("0.0295735295625"), "fl oz", USCustomary},
	CupUS:              {decimal.RequireFromString("0.2365882365"), "cup", USCustomary},
	GallonUS:           {decimal.RequireFromString("3.785411784"), "gal", USCustomary},
	FluidOunceImperial: {decimal.RequireFromString("0.0284130625"), "fl oz", Imperial},
	GallonImperial:     {decimal.RequireFromString("4.54609"), "gal", Imperial},
}

func info(u Unit) unitInfo {
	i, ok := units[u]
	if !ok {
		panic(fmt.Sprintf("domain: %q is not a volume unit", string(u)))
	}
	return i
}

// Valid reports whether u is a known volume unit.
func (u Unit) Valid() bool {
	_, ok := units[u]
	return ok
}

// Symbol returns the display symbol for u.
func (u Unit) Symbol() string { return info(u).symbol }

// System returns the measurement system u belongs to.
func (u Unit) System() System { return info(u).system }

// ConvertVolume converts v from one volume unit to another.
// It panics if either unit is unknown; unit values are fixed at build time,
// user input goes through ParseUnit first.
func ConvertVolume(v decimal.Decimal, from, to Unit) decimal.Decimal {
	f, t := info(from), info(to)
	if from == to {
		return v
	}
	return v.Mul(f.liters).Div(t.liters)
}

// ParseUnit maps user input such as "ml", "liters" or "oz" to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ml", "milliliter", "milliliters", "millilitre", "millilitres":
		return Milliliter, nil
	case "l", "liter", "liters", "litre", "litres":
		return Liter, nil
	case "fl_oz_us", "fl oz", "floz", "fl_oz", "oz":
		return FluidOunceUS, nil
	case "fl_oz_imp", "imp fl oz":
		return FluidOunceImperial, nil
	case "cup_us", "cup", "cups":
		return CupUS, nil
	case "gal_us", "gal", "gallon", "gallons":
		return GallonUS, nil
	case "gal_imp", "imp gal":
		return GallonImperial, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, s)
}

// Quantity is an amount of water in a given unit.
type Quantity struct {
	Value decimal.Decimal `json:"value"`
	Unit  Unit            `json:"unit"`
}

// NewQuantity builds a Quantity from a float value.
func NewQuantity(v float64, u Unit) Quantity {
	return Quantity{Value: decimal.NewFromFloat(v), Unit: u}
}

// In returns q expressed in unit u.
func (q Quantity) In(u Unit) Quantity {
	return Quantity{Value: ConvertVolume(q.Value, q.Unit, u), Unit: u}
}

// IsPositive reports whether q holds a positive amount.
func (q Quantity) IsPositive() bool { return q.Value.IsPositive() }

// MaxEntry bounds a single amount accepted from user input.
var MaxEntry = Quantity{Value: decimal.NewFromInt(10), Unit: Liter}

// CheckEntry validates an amount typed by a user before it is logged.
func CheckEntry(q Quantity) error {
	if !q.Unit.Valid() || !q.IsPositive() {
		return ErrInvalidAmount
	}
	if q.In(Liter).Value.GreaterThan(MaxEntry.Value) {
		return ErrAmountTooLarge
	}
	return nil
}

func (q Quantity) String() string {
	return q.Value.String() + " " + q.Unit.Symbol()
}
