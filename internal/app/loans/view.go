package loans

import (
	"context"

	"github.com/dalemusser/jamiifunds/internal/domain/amortize"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// View is a loan with its computed repayment figures.
type View struct {
	Loan           models.Loan        `json:"loan"`
	EMI            money.Amount       `json:"emi"`
	TotalRepayable money.Amount       `json:"total_repayable"`
	TotalPaid      money.Amount       `json:"total_paid"`
	BalanceDue     money.Amount       `json:"balance_due"`
	Repayments     []models.Repayment `json:"repayments"`
}

func terms(l models.Loan) amortize.Terms {
	return amortize.Terms{Principal: l.Principal, Rate: l.InterestRate, TenureMonths: l.TenureMonths}
}

// View recomputes the loan's figures from its terms and repayment rows.
func (s *Service) View(ctx context.Context, loanID primitive.ObjectID) (View, error) {
	loan, err := s.get(ctx, loanID)
	if err != nil {
		return View{}, err
	}
	emi, err := amortize.EMI(terms(loan))
	if err != nil {
		return View{}, err
	}
	reps, err := s.repayments.ListByLoan(ctx, loan.ID)
	if err != nil {
		return View{}, err
	}
	amounts := make([]money.Amount, 0, len(reps))
	for _, r := range reps {
		amounts = append(amounts, r.Amount)
	}
	paid := amortize.TotalPaid(amounts...)
	if !paid.Equal(loan.TotalPaid) {
		s.log.Warn("loan running total disagrees with repayments",
			zap.String("loan_id", loan.ID.Hex()),
			zap.String("total_paid", loan.TotalPaid.String()),
			zap.String("repayments_sum", paid.String()))
	}
	return View{
		Loan:           loan,
		EMI:            emi,
		TotalRepayable: loan.TotalRepayable,
		TotalPaid:      paid,
		BalanceDue:     amortize.BalanceDue(loan.TotalRepayable, paid),
		Repayments:     reps,
	}, nil
}

// Schedule returns the loan's month-by-month amortization.
func (s *Service) Schedule(ctx context.Context, loanID primitive.ObjectID) ([]amortize.Installment, error) {
	loan, err := s.get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return amortize.Schedule(terms(loan))
}

// Quote prices terms without creating a loan. A nil rate uses the default.
func (s *Service) Quote(principal money.Amount, tenureMonths int, rate *money.Rate) (amortize.Quote, error) {
	t := amortize.Terms{Principal: principal, Rate: s.cfg.DefaultRate, TenureMonths: tenureMonths}
	if rate != nil {
		t.Rate = *rate
	}
	if err := s.checkTenure(tenureMonths); err != nil {
		return amortize.Quote{}, err
	}
	return amortize.Compute(t)
}

func (s *Service) checkTenure(months int) error {
	if s.cfg.MaxTenureMonths > 0 && months > s.cfg.MaxTenureMonths {
		return apperr.Newf(apperr.ErrInvalidTerms, "tenure may not exceed %d months", s.cfg.MaxTenureMonths)
	}
	return nil
}
