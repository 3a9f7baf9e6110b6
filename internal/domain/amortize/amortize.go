// Package amortize holds the loan arithmetic: equated monthly installments,
// total repayable and balance due. Everything here is pure and works on
// fixed-point money values.
package amortize

import (
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/shopspring/decimal"
)

// workScale is the number of fractional digits kept for intermediate results.
// Only the final installment is rounded to cents.
const workScale = 20

var one = decimal.NewFromInt(1)

// Terms are the inputs that fully determine a loan's repayment plan.
type Terms struct {
	Principal    money.Amount
	Rate         money.Rate // percent per month
	TenureMonths int
}

// Validate rejects a non-positive principal or tenure.
func (t Terms) Validate() error {
	if !t.Principal.IsPositive() {
		return apperr.Newf(apperr.ErrInvalidTerms, "principal must be positive, got %s", t.Principal)
	}
	if t.TenureMonths <= 0 {
		return apperr.Newf(apperr.ErrInvalidTerms, "tenure must be at least one month, got %d", t.TenureMonths)
	}
	return nil
}

// Quote is the repayment summary for a set of terms.
type Quote struct {
	EMI            money.Amount `json:"emi"`
	TotalRepayable money.Amount `json:"total_repayable"`
	TotalInterest  money.Amount `json:"total_interest"`
}

// EMI returns the equated monthly installment rounded half-up to cents.
//
// With a zero rate the installment is principal/tenure. Otherwise it is
// P·r·(1+r)^n / ((1+r)^n − 1) with r the monthly rate as a fraction.
func EMI(t Terms) (money.Amount, error) {
	if err := t.Validate(); err != nil {
		return money.Zero, err
	}
	p := t.Principal.Decimal()
	n := int64(t.TenureMonths)

	if t.Rate.IsZero() {
		return money.FromDecimal(p.DivRound(decimal.NewFromInt(n), workScale)), nil
	}

	r := t.Rate.Monthly()
	growth := compound(one.Add(r), t.TenureMonths)
	num := p.Mul(r).Mul(growth)
	den := growth.Sub(one)
	return money.FromDecimal(num.DivRound(den, workScale)), nil
}

// compound returns base^n, keeping workScale digits after each step.
func compound(base decimal.Decimal, n int) decimal.Decimal {
	out := one
	for i := 0; i < n; i++ {
		out = out.Mul(base).Round(workScale)
	}
	return out
}

// TotalRepayable is EMI × tenure.
func TotalRepayable(t Terms) (money.Amount, error) {
	emi, err := EMI(t)
	if err != nil {
		return money.Zero, err
	}
	return emi.MulInt(int64(t.TenureMonths)), nil
}

// Compute returns the full quote for t. TotalInterest is zero when rounding
// leaves TotalRepayable below the principal.
func Compute(t Terms) (Quote, error) {
	emi, err := EMI(t)
	if err != nil {
		return Quote{}, err
	}
	total := emi.MulInt(int64(t.TenureMonths))
	return Quote{
		EMI:            emi,
		TotalRepayable: total,
		TotalInterest:  nonNegative(total.Sub(t.Principal)),
	}, nil
}

// TotalPaid sums repayment amounts. No repayments means zero.
func TotalPaid(repayments ...money.Amount) money.Amount {
	return money.Sum(repayments...)
}

// BalanceDue is totalRepayable − totalPaid. A negative result means the
// ledger was overpaid, which callers must never allow to happen.
func BalanceDue(totalRepayable, totalPaid money.Amount) money.Amount {
	return totalRepayable.Sub(totalPaid)
}
