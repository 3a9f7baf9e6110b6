package chamas

import (
	"context"
	"errors"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/normalize"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Directory resolves memberships together with the person and group they join.
type Directory struct {
	groups      store.Groups
	persons     store.Persons
	memberships store.Memberships
	countryCode string
}

func NewDirectory(stores store.Set, countryCode string) *Directory {
	return &Directory{
		groups:      stores.Groups,
		persons:     stores.Persons,
		memberships: stores.Memberships,
		countryCode: countryCode,
	}
}

// Membership loads a bare membership.
func (d *Directory) Membership(ctx context.Context, id primitive.ObjectID) (models.Membership, error) {
	m, err := d.memberships.GetByID(ctx, id)
	if err != nil {
		return models.Membership{}, store.NotFound(err, "membership")
	}
	return m, nil
}

// Resolve loads a membership with its person and group.
func (d *Directory) Resolve(ctx context.Context, membershipID primitive.ObjectID) (models.MembershipContext, error) {
	m, err := d.Membership(ctx, membershipID)
	if err != nil {
		return models.MembershipContext{}, err
	}
	return d.complete(ctx, m)
}

func (d *Directory) complete(ctx context.Context, m models.Membership) (models.MembershipContext, error) {
	p, err := d.persons.GetByID(ctx, m.PersonID)
	if err != nil {
		return models.MembershipContext{}, store.NotFound(err, "person")
	}
	g, err := d.groups.GetByID(ctx, m.GroupID)
	if err != nil {
		return models.MembershipContext{}, store.NotFound(err, "group")
	}
	return models.MembershipContext{Membership: m, Person: p, Group: g}, nil
}

// ResolvePayer finds the membership a mobile-money payment from phone should
// be credited to. A membership in preferredGroup wins; otherwise the oldest
// membership that can accrue, then the oldest membership of any state.
// It fails with apperr.ErrUnknownPayer when the phone matches no membership.
func (d *Directory) ResolvePayer(ctx context.Context, phone string, preferredGroup *primitive.ObjectID) (models.MembershipContext, error) {
	norm, err := normalize.Phone(phone, d.countryCode)
	if err != nil {
		return models.MembershipContext{}, apperr.Wrap(apperr.ErrUnknownPayer, "payer phone is not a valid number", err)
	}
	p, err := d.persons.GetByPhone(ctx, norm)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.MembershipContext{}, apperr.Newf(apperr.ErrUnknownPayer, "no person registered with phone %s", norm)
	}
	if err != nil {
		return models.MembershipContext{}, err
	}

	ms, err := d.memberships.ListByPerson(ctx, p.ID)
	if err != nil {
		return models.MembershipContext{}, err
	}
	if len(ms) == 0 {
		return models.MembershipContext{}, apperr.Newf(apperr.ErrUnknownPayer, "person with phone %s has no memberships", norm)
	}

	var candidates []models.MembershipContext
	for _, m := range ms {
		mc, err := d.complete(ctx, m)
		if err != nil {
			return models.MembershipContext{}, err
		}
		if preferredGroup != nil && m.GroupID == *preferredGroup {
			return mc, nil
		}
		candidates = append(candidates, mc)
	}
	for _, mc := range candidates {
		if mc.CanAccrue() {
			return mc, nil
		}
	}
	return candidates[0], nil
}
