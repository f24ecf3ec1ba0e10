package billing

import (
	"errors"
	"fmt"
)

// ErrUnsupportedQuantity is returned for pack sizes outside the price list.
var ErrUnsupportedQuantity = errors.New("unsupported pack quantity")

// Pack is a purchasable bundle of consent credits.
type Pack struct {
	Quantity    int
	AmountCents int64
}

// packs is the fixed price list: a single credit or a bundle of ten.
var packs = map[int]Pack{
	1:  {Quantity: 1, AmountCents: 100},
	10: {Quantity: 10, AmountCents: 1000},
}

// PriceFor returns the pack for quantity.
func PriceFor(quantity int) (Pack, error) {
	p, ok := packs[quantity]
	if !ok {
		return Pack{}, fmt.Errorf("%w: %d", ErrUnsupportedQuantity, quantity)
	}
	return p, nil
}
