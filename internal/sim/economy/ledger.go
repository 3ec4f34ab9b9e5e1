package economy

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNegativeAmount    = errors.New("negative amount")
)

// Ledger holds the player's budget. The budget never drops below zero: a
// debit either applies in full or not at all.
type Ledger struct {
	budget int
}

func NewLedger(budget int) (*Ledger, error) {
	if budget < 0 {
		return nil, fmt.Errorf("%w: opening budget %d", ErrNegativeAmount, budget)
	}
	return &Ledger{budget: budget}, nil
}

func (l *Ledger) Budget() int { return l.budget }

func (l *Ledger) CanAfford(amount int) bool { return amount >= 0 && l.budget >= amount }

func (l *Ledger) TryDebit(amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: debit %d", ErrNegativeAmount, amount)
	}
	if l.budget < amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, l.budget)
	}
	l.budget -= amount
	return nil
}

func (l *Ledger) Credit(amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit %d", ErrNegativeAmount, amount)
	}
	l.budget += amount
	return nil
}
