// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

/*
EnsureAll is called from EnsureSchema at startup. Each ensure* function is
idempotent. Problems are aggregated so every failing collection is reported
and startup fails fast.

The unique indexes here are load-bearing: duplicate group names, phones,
national IDs, memberships, payment checkout IDs/receipts, monthly interest
entries and yearly profit distributions are rejected by MongoDB, and the stores translate the duplicate-key error into a sentinel.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"groups", ensureGroups},
		{"persons", ensurePersons},
		{"memberships", ensureMemberships},
		{"contributions", ensureContributions},
		{"loans", ensureLoans},
		{"repayments", ensureRepayments},
		{"payment_events", ensurePaymentEvents},
		{"interest_entries", ensureInterestEntries},
		{"profit_distributions", ensureProfitDistributions},
		{"profit_shares", ensureProfitShares},
		{"audit_events", ensureAuditEvents},
	}

	var problems []string
	for _, s := range sets {
		if err := s.fn(ctx, db); err != nil {
			problems = append(problems, s.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Core helper: reconcile a set of desired indexes for one collection         */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
	Sparse *bool  `bson:"sparse,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func boolOf(p *bool) bool { return p != nil && *p }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "E11000") || strings.Contains(strings.ToLower(s), "duplicate key")
}

func listExisting(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	out := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()),
				zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out
}

// ensureIndexSet creates each desired index unless one with the same keys and
// options exists. An existing index with the same keys but a different name
// or different unique/sparse options is dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listExisting(ctx, coll)

	for _, m := range models {
		var name string
		var unique, sparse bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = boolOf(m.Options.Unique)
			sparse = boolOf(m.Options.Sparse)
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		fields := []zap.Field{
			zap.String("collection", coll.Name()),
			zap.String("name", name),
			zap.String("keys", sig),
			zap.Bool("unique", unique),
		}

		if ex, ok := existing[sig]; ok {
			if boolOf(ex.Unique) == unique && boolOf(ex.Sparse) == sparse && (name == "" || ex.Name == name) {
				zap.L().Debug("reusing existing index", fields...)
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				zap.L().Warn("drop existing index failed", append(fields, zap.Error(err))...)
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if isDuplicateKeyErr(err) && unique {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			zap.L().Warn("index ensure failed", append(fields, zap.Error(err))...)
			continue
		}
		zap.L().Info("index ensured", append(fields, zap.String("took", time.Since(start).String()))...)
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureGroups(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("groups"), []mongo.IndexModel{
		// Group names are unique after case/diacritic folding.
		{
			Keys:    bson.D{{Key: "name_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_groups_nameci"),
		},
	})
}

func ensurePersons(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("persons"), []mongo.IndexModel{
		// Normalized phone is the payer-matching key.
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_persons_phone"),
		},
		{
			Keys:    bson.D{{Key: "national_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_persons_national_id"),
		},
	})
}

func ensureMemberships(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("memberships"), []mongo.IndexModel{
		// Exactly one membership per (group, person).
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "person_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_memberships_group_person"),
		},
		// A person's memberships, oldest first (payer resolution).
		{
			Keys:    bson.D{{Key: "person_id", Value: 1}, {Key: "joined_at", Value: 1}},
			Options: options.Index().SetName("idx_memberships_person_joined"),
		},
	})
}

func ensureContributions(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("contributions"), []mongo.IndexModel{
		// Savings sums and the oldest-unconfirmed-by-amount lookup.
		{
			Keys: bson.D{
				{Key: "membership_id", Value: 1},
				{Key: "confirmed", Value: 1},
				{Key: "amount", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetName("idx_contrib_membership_confirmed_amount_date"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "confirmed", Value: 1}},
			Options: options.Index().SetName("idx_contrib_group_confirmed"),
		},
	})
}

func ensureLoans(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("loans"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "membership_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "approved_at", Value: 1},
			},
			Options: options.Index().SetName("idx_loans_membership_status_approved"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_loans_group_status"),
		},
	})
}

func ensureRepayments(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("repayments"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "loan_id", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("idx_repayments_loan_date"),
		},
	})
}

func ensurePaymentEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("payment_events"), []mongo.IndexModel{
		// Idempotency key for provider callbacks. Sparse: pending events
		// have no checkout id until the provider accepts the request.
		{
			Keys:    bson.D{{Key: "checkout_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_payments_checkout_id"),
		},
		{
			Keys:    bson.D{{Key: "receipt", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_payments_receipt"),
		},
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_payments_reference"),
		},
		// Stale sweeper and the manual follow-up queue.
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_payments_status_created"),
		},
		{
			Keys:    bson.D{{Key: "outcome", Value: 1}, {Key: "completed_at", Value: -1}},
			Options: options.Index().SetName("idx_payments_outcome_completed"),
		},
	})
}

func ensureInterestEntries(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("interest_entries"), []mongo.IndexModel{
		// One accrual per loan per month.
		{
			Keys:    bson.D{{Key: "loan_id", Value: 1}, {Key: "month", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_interest_loan_month"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "month", Value: 1}},
			Options: options.Index().SetName("idx_interest_group_month"),
		},
	})
}

func ensureProfitDistributions(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("profit_distributions"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "year", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_profit_group_year"),
		},
	})
}

func ensureProfitShares(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("profit_shares"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "distribution_id", Value: 1}, {Key: "membership_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_shares_distribution_membership"),
		},
		{
			Keys:    bson.D{{Key: "membership_id", Value: 1}},
			Options: options.Index().SetName("idx_shares_membership"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}},
			Options: options.Index().SetName("idx_shares_group"),
		},
	})
}

func ensureAuditEvents(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_events"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("idx_audit_group_timestamp"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "event_type", Value: 1},
				{Key: "timestamp", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_type_timestamp"),
		},
	})
}
