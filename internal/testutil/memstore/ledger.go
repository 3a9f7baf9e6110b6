package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Contributions struct{ db *DB }

func (s Contributions) Create(_ context.Context, c models.Contribution) (models.Contribution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	c.ID = primitive.NewObjectID()
	c.Confirmed = false
	c.ConfirmedAt = nil
	if c.Date.IsZero() {
		c.Date = now
	}
	c.CreatedAt = now
	s.db.contributions[c.ID] = c
	return c, nil
}

func (s Contributions) GetByID(_ context.Context, id primitive.ObjectID) (models.Contribution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.contributions[id]
	if !ok {
		return models.Contribution{}, mongo.ErrNoDocuments
	}
	return c, nil
}

func (s Contributions) filter(match func(models.Contribution) bool) []models.Contribution {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Contribution
	for _, c := range s.db.contributions {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out
}

func (s Contributions) ListByMembership(_ context.Context, membershipID primitive.ObjectID) ([]models.Contribution, error) {
	return s.filter(func(c models.Contribution) bool { return c.MembershipID == membershipID }), nil
}

func (s Contributions) ListUnconfirmedByAmount(_ context.Context, membershipID primitive.ObjectID, amount money.Amount) ([]models.Contribution, error) {
	return s.filter(func(c models.Contribution) bool {
		return c.MembershipID == membershipID && !c.Confirmed && c.Amount.Equal(amount)
	}), nil
}

func (s Contributions) Confirm(_ context.Context, id primitive.ObjectID, ref *string, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.contributions[id]
	if !ok || c.Confirmed {
		return false, nil
	}
	c.Confirmed = true
	c.ConfirmedAt = &at
	if ref != nil {
		c.TransactionRef = ref
	}
	s.db.contributions[id] = c
	return true, nil
}

func (s Contributions) sum(match func(models.Contribution) bool) money.Amount {
	total := money.Zero
	for _, c := range s.filter(match) {
		total = total.Add(c.Amount)
	}
	return total
}

func (s Contributions) SumConfirmed(_ context.Context, membershipID primitive.ObjectID) (money.Amount, error) {
	return s.sum(func(c models.Contribution) bool { return c.MembershipID == membershipID && c.Confirmed }), nil
}

func (s Contributions) SumUnconfirmed(_ context.Context, membershipID primitive.ObjectID) (money.Amount, error) {
	return s.sum(func(c models.Contribution) bool { return c.MembershipID == membershipID && !c.Confirmed }), nil
}

func (s Contributions) SumConfirmedByGroup(_ context.Context, groupID primitive.ObjectID) (money.Amount, error) {
	return s.sum(func(c models.Contribution) bool { return c.GroupID == groupID && c.Confirmed }), nil
}

func (s Contributions) DeleteByMemberships(_ context.Context, membershipIDs []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := idSet(membershipIDs)
	var n int64
	for id, c := range s.db.contributions {
		if ids[c.MembershipID] {
			delete(s.db.contributions, id)
			n++
		}
	}
	return n, nil
}

type Loans struct{ db *DB }

func (s Loans) Create(_ context.Context, l models.Loan) (models.Loan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	l.ID = primitive.NewObjectID()
	l.Status = models.LoanPending
	l.TotalPaid = money.Zero
	l.Version = 1
	if l.AppliedAt.IsZero() {
		l.AppliedAt = now
	}
	l.UpdatedAt = now
	s.db.loans[l.ID] = l
	return l, nil
}

// Put stores l as given, bypassing Create's defaults. Tests use it to seed
// loans in a particular state.
func (s Loans) Put(l models.Loan) models.Loan {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	s.db.loans[l.ID] = l
	return l
}

func (s Loans) GetByID(_ context.Context, id primitive.ObjectID) (models.Loan, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l, ok := s.db.loans[id]
	if !ok {
		return models.Loan{}, mongo.ErrNoDocuments
	}
	return l, nil
}

func (s Loans) filter(match func(models.Loan) bool, key func(models.Loan) time.Time) []models.Loan {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Loan
	for _, l := range s.db.loans {
		if match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := key(out[i]), key(out[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out
}

func appliedAt(l models.Loan) time.Time { return l.AppliedAt }

func approvedAt(l models.Loan) time.Time {
	if l.ApprovedAt == nil {
		return time.Time{}
	}
	return *l.ApprovedAt
}

func (s Loans) ListByMembership(_ context.Context, membershipID primitive.ObjectID) ([]models.Loan, error) {
	return s.filter(func(l models.Loan) bool { return l.MembershipID == membershipID }, appliedAt), nil
}

func (s Loans) ListApproved(_ context.Context) ([]models.Loan, error) {
	return s.filter(func(l models.Loan) bool { return l.Status == models.LoanApproved }, approvedAt), nil
}

func (s Loans) ListApprovedByMembership(_ context.Context, membershipID primitive.ObjectID) ([]models.Loan, error) {
	return s.filter(func(l models.Loan) bool {
		return l.MembershipID == membershipID && l.Status == models.LoanApproved
	}, approvedAt), nil
}

func (s Loans) Transition(_ context.Context, id primitive.ObjectID, from, to models.LoanStatus, at time.Time, actor *primitive.ObjectID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l, ok := s.db.loans[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	l.UpdatedAt = at
	switch to {
	case models.LoanApproved:
		l.ApprovedAt = &at
		if actor != nil {
			l.ApprovedBy = actor
		}
	case models.LoanRejected:
		l.RejectedAt = &at
	case models.LoanRepaid:
		l.RepaidAt = &at
	case models.LoanDefaulted:
		l.DefaultedAt = &at
	}
	l.Version++
	s.db.loans[id] = l
	return true, nil
}

func (s Loans) ApplyRepayment(_ context.Context, id primitive.ObjectID, version int64, amount money.Amount, repaid bool, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l, ok := s.db.loans[id]
	if !ok || l.Status != models.LoanApproved || l.Version != version {
		return false, nil
	}
	l.TotalPaid = l.TotalPaid.Add(amount)
	l.UpdatedAt = at
	if repaid {
		l.Status = models.LoanRepaid
		l.RepaidAt = &at
	}
	l.Version++
	s.db.loans[id] = l
	return true, nil
}

func (s Loans) SumOutstandingPrincipalByGroup(_ context.Context, groupID primitive.ObjectID) (money.Amount, error) {
	total := money.Zero
	for _, l := range s.filter(func(l models.Loan) bool {
		return l.GroupID == groupID && (l.Status == models.LoanPending || l.Status == models.LoanApproved)
	}, appliedAt) {
		total = total.Add(l.Principal)
	}
	return total, nil
}

func (s Loans) IDsByMemberships(_ context.Context, membershipIDs []primitive.ObjectID) ([]primitive.ObjectID, error) {
	ids := idSet(membershipIDs)
	var out []primitive.ObjectID
	for _, l := range s.filter(func(l models.Loan) bool { return ids[l.MembershipID] }, appliedAt) {
		out = append(out, l.ID)
	}
	return out, nil
}

func (s Loans) DeleteByIDs(_ context.Context, ids []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id := range idSet(ids) {
		if _, ok := s.db.loans[id]; ok {
			delete(s.db.loans, id)
			n++
		}
	}
	return n, nil
}

type Repayments struct{ db *DB }

func (s Repayments) Create(_ context.Context, r models.Repayment) (models.Repayment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r.ID = primitive.NewObjectID()
	if r.Date.IsZero() {
		r.Date = time.Now().UTC()
	}
	s.db.repayments[r.ID] = r
	return r, nil
}

func (s Repayments) ListByLoan(_ context.Context, loanID primitive.ObjectID) ([]models.Repayment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.Repayment
	for _, r := range s.db.repayments {
		if r.LoanID == loanID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return idLess(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (s Repayments) SumByLoan(ctx context.Context, loanID primitive.ObjectID) (money.Amount, error) {
	rows, _ := s.ListByLoan(ctx, loanID)
	total := money.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total, nil
}

func (s Repayments) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.repayments[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(s.db.repayments, id)
	return nil
}

func (s Repayments) DeleteByLoans(_ context.Context, loanIDs []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := idSet(loanIDs)
	var n int64
	for id, r := range s.db.repayments {
		if ids[r.LoanID] {
			delete(s.db.repayments, id)
			n++
		}
	}
	return n, nil
}
