package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// matched carries the payer error apart from the returned error so that an
// unknown payer does not abort the transaction that records it.
type matched struct {
	Outcome
	payerErr error
}

// match links a completed event to the payer's ledger.
func (e *Engine) match(ctx context.Context, ev models.PaymentEvent) (matched, error) {
	out := Outcome{EventID: ev.ID, Status: models.PaymentCompleted}

	mc, err := e.dir.ResolvePayer(ctx, ev.Phone, ev.GroupID)
	if errors.Is(err, apperr.ErrUnknownPayer) {
		out.Match = models.MatchUnknownPayer
		if lerr := e.events.Link(ctx, ev.ID, store.Linkage{Outcome: out.Match}); lerr != nil {
			return matched{}, lerr
		}
		return matched{Outcome: out, payerErr: err}, nil
	}
	if err != nil {
		return matched{}, err
	}
	m := mc.Membership
	out.MembershipID = &m.ID

	link := store.Linkage{Outcome: models.MatchNone, MembershipID: &m.ID, GroupID: &m.GroupID}
	switch ev.Type {
	case models.PaymentLoanRepayment:
		repID, err := e.matchRepayment(ctx, ev, m)
		if err != nil {
			return matched{}, err
		}
		if repID != nil {
			link.Outcome = models.MatchRepayment
			link.RepaymentID = repID
			out.RepaymentID = repID
		}
	default:
		cid, err := e.matchContribution(ctx, ev, m)
		if err != nil {
			return matched{}, err
		}
		if cid != nil {
			link.Outcome = models.MatchContribution
			link.ContributionID = cid
			out.ContributionID = cid
		}
	}

	out.Match = link.Outcome
	if err := e.events.Link(ctx, ev.ID, link); err != nil {
		return matched{}, err
	}
	return matched{Outcome: out}, nil
}

// matchContribution confirms the oldest unconfirmed contribution on m whose
// amount equals the payment. The contribution named at initiation is tried
// first when it is still a candidate. Amounts never create contributions.
func (e *Engine) matchContribution(ctx context.Context, ev models.PaymentEvent, m models.Membership) (*primitive.ObjectID, error) {
	candidates, err := e.contributions.ListUnconfirmedByAmount(ctx, m.ID, ev.Amount)
	if err != nil {
		return nil, err
	}
	if ev.ContributionID != nil {
		preferFirst(candidates, func(c models.Contribution) bool { return c.ID == *ev.ContributionID })
	}

	at := time.Now().UTC()
	for _, c := range candidates {
		ok, err := e.contributions.Confirm(ctx, c.ID, ev.Receipt, at)
		if err != nil {
			return nil, err
		}
		if ok {
			id := c.ID
			e.log.Info("payment confirmed contribution",
				zap.String("contribution_id", id.Hex()),
				zap.String("membership_id", m.ID.Hex()))
			return &id, nil
		}
		// Confirmed by someone else in the meantime; try the next one.
	}
	return nil, nil
}

// matchRepayment posts the payment to an approved loan on m whose balance
// covers it: the loan named at initiation first, then by approval date.
func (e *Engine) matchRepayment(ctx context.Context, ev models.PaymentEvent, m models.Membership) (*primitive.ObjectID, error) {
	approved, err := e.loanStore.ListApprovedByMembership(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	if ev.LoanID != nil {
		preferFirst(approved, func(l models.Loan) bool { return l.ID == *ev.LoanID })
	}

	for _, l := range approved {
		if l.BalanceDue().LessThan(ev.Amount) {
			continue
		}
		for attempt := 1; attempt <= repaymentAttempts; attempt++ {
			posting, err := e.loans.PostRepayment(ctx, l.ID, ev.Amount, ev.Receipt)
			if err == nil {
				id := posting.Repayment.ID
				return &id, nil
			}
			if errors.Is(err, apperr.ErrConflict) && attempt < repaymentAttempts {
				continue
			}
			if errors.Is(err, apperr.ErrOverpayment) || errors.Is(err, apperr.ErrIllegalTransition) {
				// The loan changed since it was listed.
				break
			}
			return nil, err
		}
	}
	return nil, nil
}

// preferFirst moves the first element matching pick to the front, keeping
// the order of the rest.
func preferFirst[T any](xs []T, pick func(T) bool) {
	for i, x := range xs {
		if pick(x) {
			copy(xs[1:i+1], xs[:i])
			xs[0] = x
			return
		}
	}
}
