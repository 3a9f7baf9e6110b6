// Package savings aggregates confirmed contributions and decides loan eligibility.
package savings

import (
	"context"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultMultiple is how many times the requested principal a member must
// hold in confirmed savings.
const DefaultMultiple = 3

// Eligible reports whether savings cover principal times multiple.
func Eligible(savings, principal money.Amount, multiple int64) bool {
	return savings.GreaterOrEqual(principal.MulInt(multiple))
}

// MaxPrincipal is the largest principal savings qualify for, in whole cents.
func MaxPrincipal(savings money.Amount, multiple int64) money.Amount {
	if !savings.IsPositive() {
		return money.Zero
	}
	return savings.DivFloor(multiple)
}

type Service struct {
	memberships   store.Memberships
	contributions store.Contributions
	loans         store.Loans
	multiple      int64
}

func New(stores store.Set, multiple int64) *Service {
	if multiple <= 0 {
		multiple = DefaultMultiple
	}
	return &Service{
		memberships:   stores.Memberships,
		contributions: stores.Contributions,
		loans:         stores.Loans,
		multiple:      multiple,
	}
}

func (s *Service) Multiple() int64 { return s.multiple }

// ConfirmedSavings sums the membership's confirmed contributions.
func (s *Service) ConfirmedSavings(ctx context.Context, membershipID primitive.ObjectID) (money.Amount, error) {
	return s.contributions.SumConfirmed(ctx, membershipID)
}

// IsLoanEligible reads confirmed savings once and checks principal against
// them. It also returns the savings it read.
func (s *Service) IsLoanEligible(ctx context.Context, membershipID primitive.ObjectID, principal money.Amount) (bool, money.Amount, error) {
	saved, err := s.ConfirmedSavings(ctx, membershipID)
	if err != nil {
		return false, money.Zero, err
	}
	return Eligible(saved, principal, s.multiple), saved, nil
}

// Summary is a member's position in their group.
type Summary struct {
	MembershipID         primitive.ObjectID `json:"membership_id"`
	ConfirmedSavings     money.Amount       `json:"confirmed_savings"`
	PendingContributions money.Amount       `json:"pending_contributions"`
	OutstandingBalance   money.Amount       `json:"outstanding_balance"`
	PendingPrincipal     money.Amount       `json:"pending_principal"`
	MaxEligiblePrincipal money.Amount       `json:"max_eligible_principal"`
}

func (s *Service) MemberSummary(ctx context.Context, membershipID primitive.ObjectID) (Summary, error) {
	if _, err := s.memberships.GetByID(ctx, membershipID); err != nil {
		return Summary{}, store.NotFound(err, "membership")
	}
	saved, err := s.contributions.SumConfirmed(ctx, membershipID)
	if err != nil {
		return Summary{}, err
	}
	pending, err := s.contributions.SumUnconfirmed(ctx, membershipID)
	if err != nil {
		return Summary{}, err
	}
	loans, err := s.loans.ListByMembership(ctx, membershipID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		MembershipID:         membershipID,
		ConfirmedSavings:     saved,
		PendingContributions: pending,
		OutstandingBalance:   money.Zero,
		PendingPrincipal:     money.Zero,
		MaxEligiblePrincipal: MaxPrincipal(saved, s.multiple),
	}
	for _, l := range loans {
		switch l.Status {
		case models.LoanApproved:
			sum.OutstandingBalance = sum.OutstandingBalance.Add(l.BalanceDue())
		case models.LoanPending:
			sum.PendingPrincipal = sum.PendingPrincipal.Add(l.Principal)
		}
	}
	return sum, nil
}

// GroupTotals is a group's pooled position.
type GroupTotals struct {
	GroupID                primitive.ObjectID `json:"group_id"`
	ConfirmedContributions money.Amount       `json:"confirmed_contributions"`
	OutstandingPrincipal   money.Amount       `json:"outstanding_principal"`
}

func (s *Service) GroupTotals(ctx context.Context, groupID primitive.ObjectID) (GroupTotals, error) {
	saved, err := s.contributions.SumConfirmedByGroup(ctx, groupID)
	if err != nil {
		return GroupTotals{}, err
	}
	lent, err := s.loans.SumOutstandingPrincipalByGroup(ctx, groupID)
	if err != nil {
		return GroupTotals{}, err
	}
	return GroupTotals{GroupID: groupID, ConfirmedContributions: saved, OutstandingPrincipal: lent}, nil
}
