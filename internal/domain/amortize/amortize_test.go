package amortize

import (
	"errors"
	"testing"

	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
)

func terms(principal, rate string, months int) Terms {
	return Terms{
		Principal:    money.MustParse(principal),
		Rate:         money.MustParseRate(rate),
		TenureMonths: months,
	}
}

func TestEMI(t *testing.T) {
	tests := []struct {
		name      string
		terms     Terms
		wantEMI   string
		wantTotal string
	}{
		{"default rate two months", terms("1000.00", "1.50", 2), "511.28", "1022.56"},
		{"one percent over a year", terms("10000.00", "1.00", 12), "888.49", "10661.88"},
		{"single month", terms("500.00", "1.50", 1), "507.50", "507.50"},
		{"zero rate divides evenly", terms("1200.00", "0", 12), "100.00", "1200.00"},
		{"zero rate rounds to cents", terms("1000.00", "0", 3), "333.33", "999.99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Compute(tt.terms)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if q.EMI.String() != tt.wantEMI {
				t.Errorf("EMI: got %s, want %s", q.EMI, tt.wantEMI)
			}
			if q.TotalRepayable.String() != tt.wantTotal {
				t.Errorf("TotalRepayable: got %s, want %s", q.TotalRepayable, tt.wantTotal)
			}
		})
	}
}

func TestEMI_ZeroRateIsPrincipalOverTenure(t *testing.T) {
	for _, n := range []int{1, 2, 4, 5, 8, 10, 20} {
		tt := terms("4000.00", "0.00", n)
		emi, err := EMI(tt)
		if err != nil {
			t.Fatalf("EMI(%d months): %v", n, err)
		}
		want := tt.Principal.DivFloor(int64(n))
		if !emi.Equal(want) {
			t.Errorf("EMI(%d months): got %s, want %s", n, emi, want)
		}
	}
}

func TestTotalRepayableIsEMITimesTenure(t *testing.T) {
	for _, tt := range []Terms{
		terms("1000.00", "1.50", 2),
		terms("75000.00", "2.25", 36),
		terms("999.99", "0.75", 7),
	} {
		emi, err := EMI(tt)
		if err != nil {
			t.Fatalf("EMI: %v", err)
		}
		total, err := TotalRepayable(tt)
		if err != nil {
			t.Fatalf("TotalRepayable: %v", err)
		}
		if !total.Equal(emi.MulInt(int64(tt.TenureMonths))) {
			t.Errorf("total %s != emi %s × %d", total, emi, tt.TenureMonths)
		}
	}
}

func TestInvalidTerms(t *testing.T) {
	tests := []struct {
		name  string
		terms Terms
	}{
		{"zero principal", terms("0", "1.5", 6)},
		{"negative principal", terms("-100", "1.5", 6)},
		{"zero tenure", terms("100", "1.5", 0)},
		{"negative tenure", terms("100", "1.5", -3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EMI(tt.terms)
			if !errors.Is(err, apperr.ErrInvalidTerms) {
				t.Fatalf("got %v, want ErrInvalidTerms", err)
			}
			if !errors.Is(err, apperr.ErrValidation) {
				t.Error("invalid terms should also be a validation error")
			}
		})
	}
}

func TestBalanceDue(t *testing.T) {
	total := money.MustParse("1022.56")
	paid := TotalPaid()
	if !BalanceDue(total, paid).Equal(total) {
		t.Fatalf("balance with no repayments should equal total")
	}

	paid = TotalPaid(money.MustParse("500.00"), money.MustParse("222.56"))
	if got := BalanceDue(total, paid).String(); got != "300.00" {
		t.Errorf("BalanceDue: got %s, want 300.00", got)
	}
}

func TestSchedule(t *testing.T) {
	rows, err := Schedule(terms("1000.00", "1.50", 2))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len: got %d, want 2", len(rows))
	}

	first, last := rows[0], rows[1]
	if first.Interest.String() != "15.00" || first.Principal.String() != "496.28" || first.Remaining.String() != "503.72" {
		t.Errorf("month 1: got interest=%s principal=%s remaining=%s", first.Interest, first.Principal, first.Remaining)
	}
	if last.Principal.String() != "503.72" || last.Interest.String() != "7.56" || !last.Remaining.IsZero() {
		t.Errorf("month 2: got interest=%s principal=%s remaining=%s", last.Interest, last.Principal, last.Remaining)
	}
}

func TestScheduleSumsToTotals(t *testing.T) {
	for _, tt := range []Terms{
		terms("1000.00", "1.50", 2),
		terms("50000.00", "1.50", 24),
		terms("1000.00", "0", 3),
		terms("12345.67", "3.10", 13),
	} {
		rows, err := Schedule(tt)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		total, _ := TotalRepayable(tt)

		var payments, principal []money.Amount
		for _, r := range rows {
			payments = append(payments, r.Payment)
			principal = append(principal, r.Principal)
		}
		if got := money.Sum(payments...); !got.Equal(total) {
			t.Errorf("%v: payments sum %s, want %s", tt, got, total)
		}
		if got := money.Sum(principal...); !got.Equal(tt.Principal) {
			t.Errorf("%v: principal sum %s, want %s", tt, got, tt.Principal)
		}
		if !rows[len(rows)-1].Remaining.IsZero() {
			t.Errorf("%v: final remaining %s, want 0.00", tt, rows[len(rows)-1].Remaining)
		}
	}
}

func TestZeroRateShortfallHasNoNegativeInterest(t *testing.T) {
	tt := terms("1000.00", "0", 3)

	q, err := Compute(tt)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if q.TotalRepayable.String() != "999.99" || !q.TotalInterest.IsZero() {
		t.Errorf("quote = total %s interest %s, want 999.99 and 0.00", q.TotalRepayable, q.TotalInterest)
	}

	rows, err := Schedule(tt)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	for _, r := range rows {
		if r.Interest.IsNegative() {
			t.Errorf("month %d interest %s is negative", r.Month, r.Interest)
		}
	}
	if last := rows[len(rows)-1]; last.Principal.String() != "333.34" || !last.Interest.IsZero() {
		t.Errorf("last month: principal %s interest %s", last.Principal, last.Interest)
	}
}
