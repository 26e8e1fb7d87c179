// Package pricing holds the donation unit price and the per-donation ceiling.
// All amounts are in minor currency units (cents) unless stated otherwise.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	DefaultUnitAmount = 500
	DefaultMaxAmount  = 10000
)

type Config struct {
	UnitAmount int64
	MaxAmount  int64
}

func Default() Config {
	return Config{UnitAmount: DefaultUnitAmount, MaxAmount: DefaultMaxAmount}
}

func (c Config) Validate() error {
	if c.UnitAmount <= 0 {
		return fmt.Errorf("unit amount must be positive, got %d", c.UnitAmount)
	}
	if c.MaxAmount < c.UnitAmount {
		return fmt.Errorf("max amount (%d) must be at least the unit amount (%d)", c.MaxAmount, c.UnitAmount)
	}
	return nil
}

// MaxUnits is the largest quantity a single donation may have.
func (c Config) MaxUnits() int64 { return c.MaxAmount / c.UnitAmount }

// Total returns the charge for the given quantity in minor units.
func (c Config) Total(quantity int64) int64 { return quantity * c.UnitAmount }

// Major converts minor currency units into major units without rounding.
func Major(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
