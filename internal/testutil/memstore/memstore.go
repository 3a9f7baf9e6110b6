// Package memstore is an in-memory implementation of the store contracts
// for tests that exercise services without MongoDB. Every store shares one
// mutex, so each call is atomic. Compare-and-set methods use the same guards
// as the MongoDB stores and missing documents return mongo.ErrNoDocuments.
package memstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/store/audit"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DB holds every collection.
type DB struct {
	mu sync.Mutex

	groups        map[primitive.ObjectID]models.Group
	persons       map[primitive.ObjectID]models.Person
	memberships   map[primitive.ObjectID]models.Membership
	contributions map[primitive.ObjectID]models.Contribution
	loans         map[primitive.ObjectID]models.Loan
	repayments    map[primitive.ObjectID]models.Repayment
	payments      map[primitive.ObjectID]models.PaymentEvent
	interest      map[primitive.ObjectID]models.InterestEntry
	distributions map[primitive.ObjectID]models.ProfitDistribution
	shares        map[primitive.ObjectID]models.ProfitShare
	audit         []audit.Event
}

func New() *DB {
	return &DB{
		groups:        map[primitive.ObjectID]models.Group{},
		persons:       map[primitive.ObjectID]models.Person{},
		memberships:   map[primitive.ObjectID]models.Membership{},
		contributions: map[primitive.ObjectID]models.Contribution{},
		loans:         map[primitive.ObjectID]models.Loan{},
		repayments:    map[primitive.ObjectID]models.Repayment{},
		payments:      map[primitive.ObjectID]models.PaymentEvent{},
		interest:      map[primitive.ObjectID]models.InterestEntry{},
		distributions: map[primitive.ObjectID]models.ProfitDistribution{},
		shares:        map[primitive.ObjectID]models.ProfitShare{},
	}
}

// Set returns the stores backed by db.
func (db *DB) Set() store.Set {
	return store.Set{
		Groups:        Groups{db},
		Persons:       Persons{db},
		Memberships:   Memberships{db},
		Contributions: Contributions{db},
		Loans:         Loans{db},
		Repayments:    Repayments{db},
		PaymentEvents: PaymentEvents{db},

		InterestEntries: InterestEntries{db},
		Distributions:   Distributions{db},
		ProfitShares:    ProfitShares{db},
	}
}

// Loans exposes the loan store with its seeding helper.
func (db *DB) Loans() Loans { return Loans{db} }

// Runner runs fn directly. There is no rollback: services rely on
// compare-and-set guards for correctness, and transactions only add
// atomicity across documents on MongoDB.
type Runner struct{}

func (Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Log implements auditlog.Sink.
func (db *DB) Log(_ context.Context, e audit.Event) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	db.audit = append(db.audit, e)
	return nil
}

// AuditEvents returns recorded audit events of eventType, or all of them
// when eventType is empty.
func (db *DB) AuditEvents(eventType string) []audit.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []audit.Event
	for _, e := range db.audit {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func idLess(a, b primitive.ObjectID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func idSet(ids []primitive.ObjectID) map[primitive.ObjectID]bool {
	m := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
