package chamas

import (
	"context"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/authz"
	"github.com/dalemusser/jamiifunds/internal/app/system/normalize"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// RecordContribution records an unconfirmed contribution. A zero date means now.
func (s *Service) RecordContribution(ctx context.Context, membershipID primitive.ObjectID, amount money.Amount, date time.Time, actor *primitive.ObjectID) (models.Contribution, error) {
	if !amount.IsPositive() {
		return models.Contribution{}, apperr.New(apperr.ErrInvalidAmount, "contribution amount must be positive")
	}
	mc, err := s.dir.Resolve(ctx, membershipID)
	if err != nil {
		return models.Contribution{}, err
	}
	if !mc.CanAccrue() {
		return models.Contribution{}, apperr.New(apperr.ErrNotMember, "membership is not active")
	}

	c, err := s.stores.Contributions.Create(ctx, models.Contribution{
		MembershipID: mc.Membership.ID,
		GroupID:      mc.Group.ID,
		Amount:       amount,
		Date:         date,
	})
	if err != nil {
		return models.Contribution{}, err
	}
	s.audit.ContributionRecorded(ctx, c, actor)
	return c, nil
}

// ConfirmContribution marks a contribution confirmed on behalf of a group
// admin. A contribution is confirmed at most once.
func (s *Service) ConfirmContribution(ctx context.Context, contributionID, actorID primitive.ObjectID, ref string) (models.Contribution, error) {
	c, err := s.stores.Contributions.GetByID(ctx, contributionID)
	if err != nil {
		return models.Contribution{}, store.NotFound(err, "contribution")
	}
	actor, err := s.dir.Membership(ctx, actorID)
	if err != nil {
		return models.Contribution{}, err
	}
	if err := authz.RequireManage(actor, c); err != nil {
		return models.Contribution{}, err
	}
	if c.Confirmed {
		return models.Contribution{}, apperr.New(apperr.ErrIllegalTransition, "contribution is already confirmed")
	}

	txRef := normalize.TrimRef(ref)
	ok, err := s.stores.Contributions.Confirm(ctx, c.ID, txRef, time.Now().UTC())
	if err != nil {
		return models.Contribution{}, err
	}
	if !ok {
		return models.Contribution{}, apperr.New(apperr.ErrIllegalTransition, "contribution is already confirmed")
	}

	c, err = s.stores.Contributions.GetByID(ctx, c.ID)
	if err != nil {
		return models.Contribution{}, err
	}
	s.log.Info("contribution confirmed manually",
		zap.String("contribution_id", c.ID.Hex()),
		zap.String("actor_id", actorID.Hex()))
	s.audit.ContributionConfirmed(ctx, c, &actorID, txRef)
	return c, nil
}
