// Package chamas manages groups, people and their memberships, and records
// member contributions.
package chamas

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	groupstore "github.com/dalemusser/jamiifunds/internal/app/store/groups"
	membershipstore "github.com/dalemusser/jamiifunds/internal/app/store/memberships"
	personstore "github.com/dalemusser/jamiifunds/internal/app/store/persons"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/app/system/normalize"
	"github.com/dalemusser/jamiifunds/internal/app/system/txn"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type Service struct {
	stores      store.Set
	dir         *Directory
	txn         txn.Runner
	audit       *auditlog.Logger
	log         *zap.Logger
	countryCode string
}

func New(stores store.Set, runner txn.Runner, audit *auditlog.Logger, log *zap.Logger, countryCode string) *Service {
	return &Service{
		stores:      stores,
		dir:         NewDirectory(stores, countryCode),
		txn:         runner,
		audit:       audit,
		log:         log,
		countryCode: countryCode,
	}
}

func (s *Service) Directory() *Directory { return s.dir }

// CreateGroup registers a new active group. Names are unique ignoring case
// and diacritics.
func (s *Service) CreateGroup(ctx context.Context, name, description string, actor *primitive.ObjectID) (models.Group, error) {
	name = normalize.Name(name)
	if name == "" {
		return models.Group{}, apperr.New(apperr.ErrValidation, "group name is required")
	}
	g, err := s.stores.Groups.Create(ctx, models.Group{
		Name:        name,
		Description: strings.TrimSpace(description),
	})
	if errors.Is(err, groupstore.ErrDuplicateGroupName) {
		return models.Group{}, apperr.Wrap(apperr.ErrValidation, "a group with this name already exists", err)
	}
	if err != nil {
		return models.Group{}, err
	}
	s.audit.GroupCreated(ctx, g, actor)
	return g, nil
}

// PersonInput is the registration form for a person.
type PersonInput struct {
	FullName   string
	Phone      string
	NationalID string
	Email      string
}

// RegisterPerson normalizes and stores a new active person.
func (s *Service) RegisterPerson(ctx context.Context, in PersonInput, actor *primitive.ObjectID) (models.Person, error) {
	fullName := normalize.Name(in.FullName)
	if fullName == "" {
		return models.Person{}, apperr.New(apperr.ErrValidation, "full name is required")
	}
	phone, err := normalize.Phone(in.Phone, s.countryCode)
	if err != nil {
		return models.Person{}, apperr.Wrap(apperr.ErrValidation, "phone number is not valid", err)
	}
	nationalID := normalize.NationalID(in.NationalID)
	if nationalID == "" {
		return models.Person{}, apperr.New(apperr.ErrValidation, "national ID is required")
	}
	p := models.Person{FullName: fullName, Phone: phone, NationalID: nationalID}
	if email := normalize.Email(in.Email); email != "" {
		p.Email = &email
	}

	p, err = s.stores.Persons.Create(ctx, p)
	switch {
	case errors.Is(err, personstore.ErrDuplicatePhone):
		return models.Person{}, apperr.Wrap(apperr.ErrValidation, "a person with this phone number is already registered", err)
	case errors.Is(err, personstore.ErrDuplicateNationalID):
		return models.Person{}, apperr.Wrap(apperr.ErrValidation, "a person with this national ID is already registered", err)
	case err != nil:
		return models.Person{}, err
	}
	s.audit.PersonRegistered(ctx, p, actor)
	return p, nil
}

// Join adds person to group. Both must exist and be active.
func (s *Service) Join(ctx context.Context, groupID, personID primitive.ObjectID, isAdmin bool, actor *primitive.ObjectID) (models.Membership, error) {
	g, err := s.stores.Groups.GetByID(ctx, groupID)
	if err != nil {
		return models.Membership{}, store.NotFound(err, "group")
	}
	p, err := s.stores.Persons.GetByID(ctx, personID)
	if err != nil {
		return models.Membership{}, store.NotFound(err, "person")
	}
	if !g.Active {
		return models.Membership{}, apperr.New(apperr.ErrNotMember, "group is not active")
	}
	if !p.Active {
		return models.Membership{}, apperr.New(apperr.ErrNotMember, "person is not active")
	}

	m, err := s.stores.Memberships.Create(ctx, models.Membership{
		GroupID:  groupID,
		PersonID: personID,
		IsAdmin:  isAdmin,
	})
	if errors.Is(err, membershipstore.ErrDuplicateMembership) {
		return models.Membership{}, apperr.Wrap(apperr.ErrValidation, "person is already a member of this group", err)
	}
	if err != nil {
		return models.Membership{}, err
	}
	s.audit.MemberJoined(ctx, m, actor)
	return m, nil
}

func (s *Service) SetGroupActive(ctx context.Context, groupID primitive.ObjectID, active bool, actor *primitive.ObjectID) error {
	if err := s.stores.Groups.SetActive(ctx, groupID, active); err != nil {
		return store.NotFound(err, "group")
	}
	s.audit.GroupStatusChanged(ctx, groupID, actor, active)
	return nil
}

func (s *Service) SetPersonActive(ctx context.Context, personID primitive.ObjectID, active bool, actor *primitive.ObjectID) error {
	if err := s.stores.Persons.SetActive(ctx, personID, active); err != nil {
		return store.NotFound(err, "person")
	}
	s.audit.PersonStatusChanged(ctx, personID, actor, active)
	return nil
}

func (s *Service) SetMembershipActive(ctx context.Context, membershipID primitive.ObjectID, active bool, actor *primitive.ObjectID) error {
	m, err := s.dir.Membership(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.stores.Memberships.SetActive(ctx, membershipID, active); err != nil {
		return store.NotFound(err, "membership")
	}
	s.audit.MemberStatusChanged(ctx, m, actor, active)
	return nil
}

func (s *Service) SetMembershipAdmin(ctx context.Context, membershipID primitive.ObjectID, isAdmin bool, actor *primitive.ObjectID) error {
	m, err := s.dir.Membership(ctx, membershipID)
	if err != nil {
		return err
	}
	if err := s.stores.Memberships.SetAdmin(ctx, membershipID, isAdmin); err != nil {
		return store.NotFound(err, "membership")
	}
	s.audit.MemberAdminChanged(ctx, m, actor, isAdmin)
	return nil
}

// CascadeResult counts what a cascading delete removed.
type CascadeResult struct {
	Memberships   int64
	Contributions int64
	Loans         int64
	Repayments    int64
	Interest      int64
	ProfitShares  int64
	Distributions int64
}

// deleteMemberships removes memberships and everything hanging off them.
// It must run inside a transaction.
func (s *Service) deleteMemberships(ctx context.Context, ms []models.Membership) (CascadeResult, error) {
	var res CascadeResult
	if len(ms) == 0 {
		return res, nil
	}
	ids := make([]primitive.ObjectID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ID)
	}

	loanIDs, err := s.stores.Loans.IDsByMemberships(ctx, ids)
	if err != nil {
		return res, err
	}
	if res.Repayments, err = s.stores.Repayments.DeleteByLoans(ctx, loanIDs); err != nil {
		return res, err
	}
	if res.Interest, err = s.stores.InterestEntries.DeleteByLoans(ctx, loanIDs); err != nil {
		return res, err
	}
	if res.Loans, err = s.stores.Loans.DeleteByIDs(ctx, loanIDs); err != nil {
		return res, err
	}
	if res.Contributions, err = s.stores.Contributions.DeleteByMemberships(ctx, ids); err != nil {
		return res, err
	}
	if res.ProfitShares, err = s.stores.ProfitShares.DeleteByMemberships(ctx, ids); err != nil {
		return res, err
	}
	if res.Memberships, err = s.stores.Memberships.DeleteByIDs(ctx, ids); err != nil {
		return res, err
	}
	return res, nil
}

// DeleteGroup removes a group with its memberships, contributions, loans,
// repayments, interest and profit distributions in one transaction. Payment
// events are kept.
func (s *Service) DeleteGroup(ctx context.Context, groupID primitive.ObjectID, actor *primitive.ObjectID) (CascadeResult, error) {
	if _, err := s.stores.Groups.GetByID(ctx, groupID); err != nil {
		return CascadeResult{}, store.NotFound(err, "group")
	}

	var res CascadeResult
	err := s.txn.Run(ctx, func(ctx context.Context) error {
		ms, err := s.stores.Memberships.ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if res, err = s.deleteMemberships(ctx, ms); err != nil {
			return err
		}
		if _, err = s.stores.ProfitShares.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		if res.Distributions, err = s.stores.Distributions.DeleteByGroup(ctx, groupID); err != nil {
			return err
		}
		_, err = s.stores.Groups.Delete(ctx, groupID)
		return err
	})
	if err != nil {
		s.log.Error("group delete failed", zap.Error(err), zap.String("group_id", groupID.Hex()))
		return CascadeResult{}, err
	}
	s.audit.GroupDeleted(ctx, groupID, actor, res.Memberships, res.Loans)
	return res, nil
}

// DeletePerson removes a person with all their memberships in one transaction.
func (s *Service) DeletePerson(ctx context.Context, personID primitive.ObjectID, actor *primitive.ObjectID) (CascadeResult, error) {
	if _, err := s.stores.Persons.GetByID(ctx, personID); err != nil {
		return CascadeResult{}, store.NotFound(err, "person")
	}

	var res CascadeResult
	err := s.txn.Run(ctx, func(ctx context.Context) error {
		ms, err := s.stores.Memberships.ListByPerson(ctx, personID)
		if err != nil {
			return err
		}
		if res, err = s.deleteMemberships(ctx, ms); err != nil {
			return err
		}
		_, err = s.stores.Persons.Delete(ctx, personID)
		return err
	})
	if err != nil {
		s.log.Error("person delete failed", zap.Error(err), zap.String("person_id", personID.Hex()))
		return CascadeResult{}, err
	}
	s.audit.PersonDeleted(ctx, personID, actor, res.Memberships)
	return res, nil
}
