// Package balance holds the pure functions that decide whether a set of
// ledger lines nets to zero. Every posting insert path runs through Check;
// there is no alternate path into the ledger that skips it.
package balance

import (
	"errors"
	"fmt"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	"github.com/shopspring/decimal"
)

// Scale is the fixed number of decimal places monetary amounts are rounded
// to before comparison. Equality is exact at this scale, never an epsilon.
const Scale = 4

var (
	ErrTooFewLines     = errors.New("a balanced entry needs at least two lines")
	ErrNonPositive     = errors.New("line amount must be positive")
	ErrUnknownSide     = errors.New("line direction must be DEBIT or CREDIT")
	ErrUnbalanced      = errors.New("debits and credits do not balance")
	ErrMissingCurrency = errors.New("line currency code is required")
)

// Line is one side of a prospective entry, as seen by the validator.
type Line struct {
	AccountID    string
	Direction    domain.PostingDirection
	Amount       decimal.Decimal
	CurrencyCode string
}

// Totals holds the per-currency debit and credit sums of a set of lines.
type Totals struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// Difference returns debits minus credits; zero means balanced.
func (t Totals) Difference() decimal.Decimal {
	return t.Debits.Sub(t.Credits)
}

// Summarize sums debits and credits independently per currency. Amounts are
// rounded to Scale before accumulation so the later equality check is exact.
func Summarize(lines []Line) (map[string]Totals, error) {
	totals := make(map[string]Totals, 1)
	for i, line := range lines {
		if line.CurrencyCode == "" {
			return nil, fmt.Errorf("%w: line %d", ErrMissingCurrency, i)
		}
		amt := line.Amount.Round(Scale)
		if amt.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: line %d has amount %s", ErrNonPositive, i, line.Amount.String())
		}
		t := totals[line.CurrencyCode]
		switch line.Direction {
		case domain.Debit:
			t.Debits = t.Debits.Add(amt)
		case domain.Credit:
			t.Credits = t.Credits.Add(amt)
		default:
			return nil, fmt.Errorf("%w: line %d has direction %q", ErrUnknownSide, i, line.Direction)
		}
		totals[line.CurrencyCode] = t
	}
	return totals, nil
}

// Check validates that the lines form a balanced entry: at least two lines,
// positive amounts, known directions, and per-currency debit/credit equality.
// The error names the offending currency and the exact difference so the
// caller can correct the input.
func Check(lines []Line) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	totals, err := Summarize(lines)
	if err != nil {
		return err
	}
	for currency, t := range totals {
		if diff := t.Difference(); !diff.IsZero() {
			return fmt.Errorf("%w: currency %s is off by %s (debits %s, credits %s)",
				ErrUnbalanced, currency, diff.Abs().String(), t.Debits.String(), t.Credits.String())
		}
	}
	return nil
}

// DebitTotal returns the debit-side sum of the lines carried in
// currencyCode. This is the economic value recorded on the event, which is
// always a single-currency figure even when the lines span currencies; the
// per-currency truth lives in the postings themselves.
func DebitTotal(lines []Line, currencyCode string) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		if line.Direction == domain.Debit && line.CurrencyCode == currencyCode {
			total = total.Add(line.Amount.Round(Scale))
		}
	}
	return total
}
