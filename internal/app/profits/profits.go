// Package profits splits a chama's yearly profit among its members in
// proportion to their confirmed savings and tracks each share's payout.
package profits

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/app/system/authz"
	"github.com/dalemusser/jamiifunds/internal/app/system/txn"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Service struct {
	groups        store.Groups
	memberships   store.Memberships
	contributions store.Contributions
	interest      store.InterestEntries
	distributions store.Distributions
	shares        store.ProfitShares
	dir           *chamas.Directory
	txn           txn.Runner
	audit         *auditlog.Logger
	log           *zap.Logger
	now           func() time.Time
}

func New(stores store.Set, dir *chamas.Directory, runner txn.Runner, audit *auditlog.Logger, log *zap.Logger) *Service {
	return &Service{
		groups:        stores.Groups,
		memberships:   stores.Memberships,
		contributions: stores.Contributions,
		interest:      stores.InterestEntries,
		distributions: stores.Distributions,
		shares:        stores.ProfitShares,
		dir:           dir,
		txn:           runner,
		audit:         audit,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// DistributionInput asks for a year's profit to be shared out. A nil
// TotalProfit uses the interest the group's loans accrued during Year. A
// zero DistributedOn means today.
type DistributionInput struct {
	GroupID       primitive.ObjectID
	Year          int
	TotalProfit   *money.Amount
	DistributedOn time.Time
	Notes         string
}

// Distribution is a distribution with its shares.
type Distribution struct {
	models.ProfitDistribution
	Shares []models.ProfitShare `json:"shares"`
}

// yearProfit sums the interest the group accrued in months of year.
func (s *Service) yearProfit(ctx context.Context, groupID primitive.ObjectID, year int) (money.Amount, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return s.interest.SumByGroup(ctx, groupID, from, from.AddDate(1, 0, 0))
}

// Distribute records the group's profit for a year and splits it among
// memberships holding confirmed savings. A group distributes each year once.
func (s *Service) Distribute(ctx context.Context, in DistributionInput, actorID primitive.ObjectID) (Distribution, error) {
	if _, err := s.groups.GetByID(ctx, in.GroupID); err != nil {
		return Distribution{}, store.NotFound(err, "group")
	}
	actor, err := s.dir.Membership(ctx, actorID)
	if err != nil {
		return Distribution{}, err
	}
	if err := authz.RequireManage(actor, models.ProfitDistribution{GroupID: in.GroupID}); err != nil {
		return Distribution{}, err
	}

	now := s.now()
	if in.Year < 1 || in.Year > now.Year() {
		return Distribution{}, apperr.Newf(apperr.ErrValidation, "year must be between 1 and %d, got %d", now.Year(), in.Year)
	}

	var total money.Amount
	if in.TotalProfit != nil {
		total = *in.TotalProfit
	} else if total, err = s.yearProfit(ctx, in.GroupID, in.Year); err != nil {
		return Distribution{}, err
	}
	if !total.IsPositive() {
		return Distribution{}, apperr.Newf(apperr.ErrValidation, "total profit must be positive, got %s", total)
	}

	ms, err := s.memberships.ListByGroup(ctx, in.GroupID)
	if err != nil {
		return Distribution{}, err
	}
	var holders []models.Membership
	var savings []money.Amount
	for _, m := range ms {
		saved, err := s.contributions.SumConfirmed(ctx, m.ID)
		if err != nil {
			return Distribution{}, err
		}
		if saved.IsPositive() {
			holders = append(holders, m)
			savings = append(savings, saved)
		}
	}
	if len(holders) == 0 {
		return Distribution{}, apperr.New(apperr.ErrValidation, "no member of this group has confirmed savings")
	}

	on := in.DistributedOn
	if on.IsZero() {
		on = now
	}
	amounts := Split(total, savings)

	var out Distribution
	err = s.txn.Run(ctx, func(ctx context.Context) error {
		d, err := s.distributions.Create(ctx, models.ProfitDistribution{
			GroupID:       in.GroupID,
			Year:          in.Year,
			TotalProfit:   total,
			TotalSavings:  money.Sum(savings...),
			DistributedOn: on.UTC(),
			Notes:         in.Notes,
			CreatedBy:     &actorID,
		})
		if errors.Is(err, store.ErrDuplicate) {
			return apperr.Wrap(apperr.ErrValidation, "profit for this year was already distributed", err)
		}
		if err != nil {
			return err
		}

		shares := make([]models.ProfitShare, len(holders))
		for i, m := range holders {
			shares[i] = models.ProfitShare{
				DistributionID: d.ID,
				MembershipID:   m.ID,
				GroupID:        in.GroupID,
				Savings:        savings[i],
				Amount:         amounts[i],
			}
		}
		created, err := s.shares.CreateMany(ctx, shares)
		if err != nil {
			s.withdraw(ctx, d)
			return err
		}
		out = Distribution{ProfitDistribution: d, Shares: created}
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}

	s.log.Info("profit distributed",
		zap.String("group_id", in.GroupID.Hex()),
		zap.Int("year", in.Year),
		zap.String("total_profit", total.String()),
		zap.Int("shares", len(out.Shares)))
	s.audit.ProfitDistributed(ctx, out.ProfitDistribution, len(out.Shares), &actorID)
	return out, nil
}

// withdraw removes a distribution whose shares could not be written. Inside
// a transaction the abort does this instead.
func (s *Service) withdraw(ctx context.Context, d models.ProfitDistribution) {
	if mongo.SessionFromContext(ctx) != nil {
		return
	}
	if err := s.distributions.Delete(ctx, d.ID); err != nil {
		s.log.Error("could not remove distribution after failed share insert",
			zap.Error(err),
			zap.String("distribution_id", d.ID.Hex()),
			zap.String("group_id", d.GroupID.Hex()))
	}
}

// Get returns a distribution with its shares.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (Distribution, error) {
	d, err := s.distributions.GetByID(ctx, id)
	if err != nil {
		return Distribution{}, store.NotFound(err, "distribution")
	}
	shares, err := s.shares.ListByDistribution(ctx, id)
	if err != nil {
		return Distribution{}, err
	}
	return Distribution{ProfitDistribution: d, Shares: shares}, nil
}

// ListByGroup returns the group's distributions, most recent year first.
func (s *Service) ListByGroup(ctx context.Context, groupID primitive.ObjectID) ([]models.ProfitDistribution, error) {
	return s.distributions.ListByGroup(ctx, groupID)
}

// MemberShares lists every profit share a membership has received.
func (s *Service) MemberShares(ctx context.Context, membershipID primitive.ObjectID) ([]models.ProfitShare, error) {
	return s.shares.ListByMembership(ctx, membershipID)
}

// MarkSharePaid records that a group admin paid a share out. A share is
// paid once; a second call fails with ErrIllegalTransition.
func (s *Service) MarkSharePaid(ctx context.Context, shareID, actorID primitive.ObjectID) (models.ProfitShare, error) {
	sh, err := s.shares.GetByID(ctx, shareID)
	if err != nil {
		return models.ProfitShare{}, store.NotFound(err, "profit share")
	}
	actor, err := s.dir.Membership(ctx, actorID)
	if err != nil {
		return models.ProfitShare{}, err
	}
	if err := authz.RequireManage(actor, sh); err != nil {
		return models.ProfitShare{}, err
	}

	ok, err := s.shares.MarkPaid(ctx, sh.ID, s.now(), &actorID)
	if err != nil {
		return models.ProfitShare{}, err
	}
	if !ok {
		return models.ProfitShare{}, apperr.New(apperr.ErrIllegalTransition, "profit share is already paid")
	}
	if sh, err = s.shares.GetByID(ctx, sh.ID); err != nil {
		return models.ProfitShare{}, err
	}
	s.audit.ProfitSharePaid(ctx, sh, &actorID)
	return sh, nil
}
