package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/amortize"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data directly in MongoDB,
// bypassing the stores under test.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

func (f *Fixtures) insert(ctx context.Context, coll string, doc interface{}) {
	f.t.Helper()
	if _, err := f.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		f.t.Fatalf("failed to insert test %s: %v", coll, err)
	}
}

// CreateGroup creates an active group with the given name.
func (f *Fixtures) CreateGroup(ctx context.Context, name string) models.Group {
	f.t.Helper()

	now := time.Now().UTC()
	g := models.Group{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.insert(ctx, "groups", g)
	return g
}

// CreatePerson creates an active person. phone must already be normalized.
func (f *Fixtures) CreatePerson(ctx context.Context, fullName, phone, nationalID string) models.Person {
	f.t.Helper()

	now := time.Now().UTC()
	p := models.Person{
		ID:         primitive.NewObjectID(),
		FullName:   fullName,
		FullNameCI: text.Fold(fullName),
		Phone:      phone,
		NationalID: nationalID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.insert(ctx, "persons", p)
	return p
}

// CreateMembership joins person to group.
func (f *Fixtures) CreateMembership(ctx context.Context, groupID, personID primitive.ObjectID, isAdmin bool) models.Membership {
	f.t.Helper()

	m := models.Membership{
		ID:       primitive.NewObjectID(),
		GroupID:  groupID,
		PersonID: personID,
		IsAdmin:  isAdmin,
		Active:   true,
		JoinedAt: time.Now().UTC(),
	}
	f.insert(ctx, "memberships", m)
	return m
}

// CreateContribution records a contribution dated at the given time.
func (f *Fixtures) CreateContribution(ctx context.Context, m models.Membership, amount string, confirmed bool, date time.Time) models.Contribution {
	f.t.Helper()

	c := models.Contribution{
		ID:           primitive.NewObjectID(),
		MembershipID: m.ID,
		GroupID:      m.GroupID,
		Amount:       money.MustParse(amount),
		Date:         date.UTC(),
		Confirmed:    confirmed,
		CreatedAt:    date.UTC(),
	}
	if confirmed {
		at := date.UTC()
		c.ConfirmedAt = &at
	}
	f.insert(ctx, "contributions", c)
	return c
}

// CreateLoan inserts a loan in the given status with totals computed from the terms.
func (f *Fixtures) CreateLoan(ctx context.Context, m models.Membership, principal, rate string, months int, status models.LoanStatus) models.Loan {
	f.t.Helper()

	terms := amortize.Terms{
		Principal:    money.MustParse(principal),
		Rate:         money.MustParseRate(rate),
		TenureMonths: months,
	}
	total, err := amortize.TotalRepayable(terms)
	if err != nil {
		f.t.Fatalf("invalid fixture loan terms: %v", err)
	}

	now := time.Now().UTC()
	l := models.Loan{
		ID:             primitive.NewObjectID(),
		MembershipID:   m.ID,
		GroupID:        m.GroupID,
		Principal:      terms.Principal,
		InterestRate:   terms.Rate,
		TenureMonths:   months,
		TotalRepayable: total,
		Status:         status,
		AppliedAt:      now,
		UpdatedAt:      now,
	}
	if status != models.LoanPending && status != models.LoanRejected {
		l.ApprovedAt = &now
	}
	f.insert(ctx, "loans", l)
	return l
}
