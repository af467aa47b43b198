package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownGlass is returned by ParseGlass for an unrecognised glass size.
var ErrUnknownGlass = errors.New("unknown glass size")

// Glass is a preset serving size.
type Glass string

const (
	SmallGlass  Glass = "small"
	MediumGlass Glass = "medium"
	LargeGlass  Glass = "large"
)

// Quantity returns the amount of water held by the glass.
func (g Glass) Quantity() Quantity {
	switch g {
	case SmallGlass:
		return NewQuantity(330, Milliliter)
	case MediumGlass:
		return NewQuantity(500, Milliliter)
	case LargeGlass:
		return NewQuantity(1500, Milliliter)
	}
	panic(fmt.Sprintf("domain: unknown glass %q", string(g)))
}

// Title is the label shown on the glass button, e.g. "500ml".
func (g Glass) Title() string {
	return g.Quantity().Value.String() + "ml"
}

// ParseGlass maps a glass name to a Glass.
func ParseGlass(s string) (Glass, error) {
	switch g := Glass(strings.ToLower(strings.TrimSpace(s))); g {
	case SmallGlass, MediumGlass, LargeGlass:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGlass, s)
}
