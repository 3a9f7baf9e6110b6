// Package txn runs multi-document writes inside MongoDB transactions.
//
// Standalone servers do not support transactions. Run detects that case and
// executes the function without a session so that development setups keep
// working; the single-document compare-and-set guards in the stores still
// hold in that mode.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
)

// Runner executes fn atomically. Services depend on this interface so that
// tests can substitute an in-memory implementation.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// Mongo is the MongoDB-backed Runner.
type Mongo struct {
	client *mongo.Client
	log    *zap.Logger
}

// New returns a Runner bound to db's client.
func New(db *mongo.Database, log *zap.Logger) *Mongo {
	return &Mongo{client: db.Client(), log: log}
}

// Run executes fn in a transaction. If ctx already carries a session, fn
// joins it instead of starting a nested transaction.
func (m *Mongo) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := m.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			m.warnFallback(err)
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, opts)
	if err != nil && IsNotSupported(err) {
		m.warnFallback(err)
		return fn(ctx)
	}
	return err
}

func (m *Mongo) warnFallback(err error) {
	if m.log != nil {
		m.log.Warn("transactions not supported; running without a transaction", zap.Error(err))
	}
}

// Run is a convenience wrapper for one-off callers that do not hold a Runner.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	return New(db, log).Run(ctx, fn)
}

// IsNotSupported reports whether err means the deployment cannot run
// multi-document transactions (standalone server, unsupported session state).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, // IllegalOperation
			51,  // NoReplicationEnabled
			263: // OperationNotSupportedInTransaction
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(a, b string) bool { return strings.Contains(msg, a) && strings.Contains(msg, b) }
	switch {
	case has("transaction", "replica set"),
		has("session", "not supported"),
		has("transaction", "session"),
		has("illegal operation", ""):
		return true
	}
	return false
}
