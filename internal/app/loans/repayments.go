package loans

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Posting is the result of an accepted repayment.
type Posting struct {
	Loan       models.Loan      `json:"loan"`
	Repayment  models.Repayment `json:"repayment"`
	BalanceDue money.Amount     `json:"balance_due"`
}

// PostRepayment applies amount to an approved loan. The balance check, the
// repayment insert and the running-total update happen in one transaction;
// the update is also guarded on the loan's version, so two concurrent
// repayments cannot both pass against the same balance. A repayment that
// brings the balance to zero moves the loan to repaid.
//
// The repayment row is written before the loan. If the guarded update does
// not apply, the row is removed again, so a deployment without transactions
// never keeps a total_paid increment that has no repayment behind it.
//
// A lost race returns apperr.ErrConflict and may be retried.
func (s *Service) PostRepayment(ctx context.Context, loanID primitive.ObjectID, amount money.Amount, ref *string) (Posting, error) {
	if !amount.IsPositive() {
		return Posting{}, apperr.New(apperr.ErrInvalidAmount, "repayment amount must be positive")
	}

	var out Posting
	err := s.txn.Run(ctx, func(ctx context.Context) error {
		loan, err := s.get(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status != models.LoanApproved {
			return apperr.Newf(apperr.ErrIllegalTransition, "cannot repay a %s loan", loan.Status)
		}
		balance := loan.BalanceDue()
		if amount.GreaterThan(balance) {
			return apperr.Newf(apperr.ErrOverpayment, "repayment of %s exceeds balance due of %s", amount, balance)
		}

		now := time.Now().UTC()
		remaining := balance.Sub(amount)
		repaid := remaining.IsZero()

		rep, err := s.repayments.Create(ctx, models.Repayment{
			LoanID:         loan.ID,
			MembershipID:   loan.MembershipID,
			GroupID:        loan.GroupID,
			Amount:         amount,
			Date:           now,
			TransactionRef: ref,
		})
		if err != nil {
			return err
		}

		ok, err := s.loans.ApplyRepayment(ctx, loan.ID, loan.Version, amount, repaid, now)
		if err == nil && !ok {
			err = apperr.New(apperr.ErrConflict, "loan was modified concurrently")
		}
		if err != nil {
			s.withdraw(ctx, rep)
			return err
		}

		loan.TotalPaid = loan.TotalPaid.Add(amount)
		loan.Version++
		loan.UpdatedAt = now
		if repaid {
			loan.Status = models.LoanRepaid
			loan.RepaidAt = &now
		}
		out = Posting{Loan: loan, Repayment: rep, BalanceDue: remaining}
		return nil
	})
	if err != nil {
		if isRefusal(err) {
			var groupID *primitive.ObjectID
			if l, gerr := s.loans.GetByID(ctx, loanID); gerr == nil {
				groupID = &l.GroupID
			}
			s.audit.RepaymentRefused(ctx, loanID, groupID, amount, apperr.Message(err))
		}
		return Posting{}, err
	}

	s.audit.RepaymentPosted(ctx, out.Loan, out.Repayment, out.BalanceDue)
	if out.Loan.Status == models.LoanRepaid {
		s.log.Info("loan repaid in full", zap.String("loan_id", out.Loan.ID.Hex()))
		s.audit.LoanRepaid(ctx, out.Loan, nil)
	}
	return out, nil
}

// withdraw removes a repayment row whose loan update failed. Inside a
// transaction the abort discards the row instead.
func (s *Service) withdraw(ctx context.Context, rep models.Repayment) {
	if mongo.SessionFromContext(ctx) != nil {
		return
	}
	if err := s.repayments.Delete(ctx, rep.ID); err != nil {
		s.log.Error("could not remove repayment after failed loan update",
			zap.Error(err),
			zap.String("repayment_id", rep.ID.Hex()),
			zap.String("loan_id", rep.LoanID.Hex()))
	}
}

func isRefusal(err error) bool {
	return errors.Is(err, apperr.ErrIllegalTransition) || errors.Is(err, apperr.ErrOverpayment)
}
