// Package watch runs the background feeds that keep the probe loop's
// freshness cells populated: the anchor (blockhash) poller and the slot
// position subscriber. Both share the same consecutive-failure policy.
package watch

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted is returned once a component hits its ceiling of
// consecutive failures. Callers treat it as fatal and shut down.
var ErrBudgetExhausted = errors.New("consecutive failure budget exhausted")

// Budget counts consecutive failures for a single owner goroutine.
// Any success resets the count; it is not safe for concurrent use.
type Budget struct {
	name    string
	ceiling int
	count   int
}

func NewBudget(name string, ceiling int) *Budget {
	return &Budget{name: name, ceiling: ceiling}
}

// Fail records one failure and returns a wrapped ErrBudgetExhausted
// when the ceiling is reached, nil otherwise.
func (b *Budget) Fail() error {
	b.count++
	if b.count >= b.ceiling {
		return fmt.Errorf("%s: %d consecutive failures: %w", b.name, b.count, ErrBudgetExhausted)
	}
	return nil
}

// Reset clears the consecutive-failure count after a success.
func (b *Budget) Reset() {
	b.count = 0
}

// Count reports the current consecutive-failure count.
func (b *Budget) Count() int {
	return b.count
}
