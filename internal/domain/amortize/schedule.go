package amortize

import "github.com/dalemusser/jamiifunds/internal/domain/money"

// Installment is one month of an amortization schedule.
type Installment struct {
	Month     int          `json:"month"`
	Payment   money.Amount `json:"payment"`
	Interest  money.Amount `json:"interest"`
	Principal money.Amount `json:"principal"`
	Remaining money.Amount `json:"remaining"`
}

// Schedule lays out the month-by-month split of each installment into
// interest and principal. Every payment equals the EMI, so payments sum to
// TotalRepayable; the final month retires whatever principal remains and
// takes the cent-level rounding difference in its interest share. When EMI
// rounding leaves the payments a few cents short of the principal, as a
// zero-rate loan can, the lender absorbs the shortfall: interest never goes
// below zero.
func Schedule(t Terms) ([]Installment, error) {
	emi, err := EMI(t)
	if err != nil {
		return nil, err
	}

	r := t.Rate.Monthly()
	balance := t.Principal
	out := make([]Installment, 0, t.TenureMonths)

	for m := 1; m <= t.TenureMonths; m++ {
		interest := money.FromDecimal(balance.Decimal().Mul(r))
		principal := emi.Sub(interest)
		if m == t.TenureMonths || principal.GreaterThan(balance) {
			principal = balance
			interest = nonNegative(emi.Sub(principal))
		}
		balance = balance.Sub(principal)
		out = append(out, Installment{
			Month:     m,
			Payment:   emi,
			Interest:  interest,
			Principal: principal,
			Remaining: balance,
		})
	}
	return out, nil
}

func nonNegative(a money.Amount) money.Amount {
	if a.IsNegative() {
		return money.Zero
	}
	return a
}
