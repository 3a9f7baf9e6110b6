package memstore

import (
	"context"
	"sort"
	"time"

	distributionstore "github.com/dalemusser/jamiifunds/internal/app/store/distributions"
	interestentrystore "github.com/dalemusser/jamiifunds/internal/app/store/interest"
	profitsharestore "github.com/dalemusser/jamiifunds/internal/app/store/profitshares"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type InterestEntries struct{ db *DB }

func (s InterestEntries) Create(_ context.Context, e models.InterestEntry) (models.InterestEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e.Month = models.MonthStart(e.Month)
	for _, other := range s.db.interest {
		if other.LoanID == e.LoanID && other.Month.Equal(e.Month) {
			return models.InterestEntry{}, interestentrystore.ErrDuplicateMonth
		}
	}
	e.ID = primitive.NewObjectID()
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	s.db.interest[e.ID] = e
	return e, nil
}

func (s InterestEntries) ListByLoan(_ context.Context, loanID primitive.ObjectID) ([]models.InterestEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.InterestEntry
	for _, e := range s.db.interest {
		if e.LoanID == loanID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

func (s InterestEntries) SumByGroup(_ context.Context, groupID primitive.ObjectID, from, to time.Time) (money.Amount, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	total := money.Zero
	for _, e := range s.db.interest {
		if e.GroupID == groupID && !e.Month.Before(from) && e.Month.Before(to) {
			total = total.Add(e.Amount)
		}
	}
	return total, nil
}

func (s InterestEntries) DeleteByLoans(_ context.Context, loanIDs []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := idSet(loanIDs)
	var n int64
	for id, e := range s.db.interest {
		if ids[e.LoanID] {
			delete(s.db.interest, id)
			n++
		}
	}
	return n, nil
}

type Distributions struct{ db *DB }

func (s Distributions) Create(_ context.Context, d models.ProfitDistribution) (models.ProfitDistribution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, other := range s.db.distributions {
		if other.GroupID == d.GroupID && other.Year == d.Year {
			return models.ProfitDistribution{}, distributionstore.ErrDuplicateYear
		}
	}
	d.ID = primitive.NewObjectID()
	d.CreatedAt = time.Now().UTC()
	s.db.distributions[d.ID] = d
	return d, nil
}

func (s Distributions) GetByID(_ context.Context, id primitive.ObjectID) (models.ProfitDistribution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	d, ok := s.db.distributions[id]
	if !ok {
		return models.ProfitDistribution{}, mongo.ErrNoDocuments
	}
	return d, nil
}

func (s Distributions) ListByGroup(_ context.Context, groupID primitive.ObjectID) ([]models.ProfitDistribution, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ProfitDistribution
	for _, d := range s.db.distributions {
		if d.GroupID == groupID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (s Distributions) Delete(_ context.Context, id primitive.ObjectID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.distributions[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(s.db.distributions, id)
	return nil
}

func (s Distributions) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, d := range s.db.distributions {
		if d.GroupID == groupID {
			delete(s.db.distributions, id)
			n++
		}
	}
	return n, nil
}

type ProfitShares struct{ db *DB }

func (s ProfitShares) CreateMany(_ context.Context, shares []models.ProfitShare) ([]models.ProfitShare, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	seen := map[[2]primitive.ObjectID]bool{}
	for _, other := range s.db.shares {
		seen[[2]primitive.ObjectID{other.DistributionID, other.MembershipID}] = true
	}
	for _, sh := range shares {
		key := [2]primitive.ObjectID{sh.DistributionID, sh.MembershipID}
		if seen[key] {
			return nil, profitsharestore.ErrDuplicateShare
		}
		seen[key] = true
	}
	out := make([]models.ProfitShare, len(shares))
	for i, sh := range shares {
		sh.ID = primitive.NewObjectID()
		sh.Paid = false
		sh.PaidAt = nil
		sh.PaidBy = nil
		s.db.shares[sh.ID] = sh
		out[i] = sh
	}
	return out, nil
}

func (s ProfitShares) GetByID(_ context.Context, id primitive.ObjectID) (models.ProfitShare, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sh, ok := s.db.shares[id]
	if !ok {
		return models.ProfitShare{}, mongo.ErrNoDocuments
	}
	return sh, nil
}

func (s ProfitShares) filter(keep func(models.ProfitShare) bool) []models.ProfitShare {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.ProfitShare
	for _, sh := range s.db.shares {
		if keep(sh) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool { return idLess(out[i].ID, out[j].ID) })
	return out
}

func (s ProfitShares) ListByDistribution(_ context.Context, distributionID primitive.ObjectID) ([]models.ProfitShare, error) {
	return s.filter(func(sh models.ProfitShare) bool { return sh.DistributionID == distributionID }), nil
}

func (s ProfitShares) ListByMembership(_ context.Context, membershipID primitive.ObjectID) ([]models.ProfitShare, error) {
	return s.filter(func(sh models.ProfitShare) bool { return sh.MembershipID == membershipID }), nil
}

func (s ProfitShares) MarkPaid(_ context.Context, id primitive.ObjectID, at time.Time, actor *primitive.ObjectID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sh, ok := s.db.shares[id]
	if !ok || sh.Paid {
		return false, nil
	}
	sh.Paid = true
	sh.PaidAt = &at
	sh.PaidBy = actor
	s.db.shares[id] = sh
	return true, nil
}

func (s ProfitShares) DeleteByGroup(_ context.Context, groupID primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, sh := range s.db.shares {
		if sh.GroupID == groupID {
			delete(s.db.shares, id)
			n++
		}
	}
	return n, nil
}

func (s ProfitShares) DeleteByMemberships(_ context.Context, membershipIDs []primitive.ObjectID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	ids := idSet(membershipIDs)
	var n int64
	for id, sh := range s.db.shares {
		if ids[sh.MembershipID] {
			delete(s.db.shares, id)
			n++
		}
	}
	return n, nil
}
