package loans

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/amortize"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Accrual summarizes one AccrueMonth run.
type Accrual struct {
	Month           time.Time    `json:"month"`
	Recorded        int          `json:"recorded"`
	AlreadyRecorded int          `json:"already_recorded"`
	Total           money.Amount `json:"total"`
}

// installmentFor returns which schedule installment of loan falls in month.
// The first installment is due the month after approval.
func installmentFor(loan models.Loan, month time.Time) int {
	if loan.ApprovedAt == nil {
		return 0
	}
	from := models.MonthStart(*loan.ApprovedAt)
	to := models.MonthStart(month)
	return (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
}

// accrue records the interest share of the loan's installment for month.
// ok is false when the month lies outside the loan's schedule.
func (s *Service) accrue(ctx context.Context, loan models.Loan, month time.Time) (models.InterestEntry, bool, error) {
	k := installmentFor(loan, month)
	if k < 1 || k > loan.TenureMonths {
		return models.InterestEntry{}, false, nil
	}
	schedule, err := amortize.Schedule(terms(loan))
	if err != nil {
		return models.InterestEntry{}, false, err
	}
	e, err := s.interest.Create(ctx, models.InterestEntry{
		LoanID:       loan.ID,
		MembershipID: loan.MembershipID,
		GroupID:      loan.GroupID,
		Month:        month,
		Installment:  k,
		Amount:       schedule[k-1].Interest,
	})
	if err != nil {
		return models.InterestEntry{}, true, err
	}
	s.audit.InterestAccrued(ctx, loan, e)
	return e, true, nil
}

// AccrueInterest records one approved loan's interest for month.
func (s *Service) AccrueInterest(ctx context.Context, loanID primitive.ObjectID, month time.Time) (models.InterestEntry, error) {
	loan, err := s.get(ctx, loanID)
	if err != nil {
		return models.InterestEntry{}, err
	}
	if loan.Status != models.LoanApproved {
		return models.InterestEntry{}, apperr.Newf(apperr.ErrIllegalTransition, "a %s loan does not accrue interest", loan.Status)
	}
	e, ok, err := s.accrue(ctx, loan, month)
	if errors.Is(err, store.ErrDuplicate) {
		return models.InterestEntry{}, apperr.Wrap(apperr.ErrValidation, "interest already recorded for this month", err)
	}
	if err != nil {
		return models.InterestEntry{}, err
	}
	if !ok {
		return models.InterestEntry{}, apperr.Newf(apperr.ErrValidation,
			"%s is outside the loan's repayment schedule", models.MonthStart(month).Format("2006-01"))
	}
	return e, nil
}

// AccrueMonth records month's interest for every approved loan. Loans whose
// schedule does not cover month are skipped, and months already recorded
// are counted rather than treated as errors, so the run can be repeated.
func (s *Service) AccrueMonth(ctx context.Context, month time.Time) (Accrual, error) {
	out := Accrual{Month: models.MonthStart(month), Total: money.Zero}
	loans, err := s.loans.ListApproved(ctx)
	if err != nil {
		return out, err
	}
	for _, loan := range loans {
		e, ok, err := s.accrue(ctx, loan, month)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			out.AlreadyRecorded++
		case err != nil:
			return out, err
		case ok:
			out.Recorded++
			out.Total = out.Total.Add(e.Amount)
		}
	}
	if out.Recorded > 0 {
		s.log.Info("accrued loan interest",
			zap.String("month", out.Month.Format("2006-01")),
			zap.Int("recorded", out.Recorded),
			zap.String("total", out.Total.String()))
	}
	return out, nil
}

// InterestEntries lists a loan's recorded interest, oldest month first.
func (s *Service) InterestEntries(ctx context.Context, loanID primitive.ObjectID) ([]models.InterestEntry, error) {
	if _, err := s.get(ctx, loanID); err != nil {
		return nil, err
	}
	return s.interest.ListByLoan(ctx, loanID)
}
