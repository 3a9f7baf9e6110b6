// internal/app/store/paymentevents/paymenteventstore.go
package paymenteventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

var (
	ErrDuplicateCheckout  = fmt.Errorf("%w: payment with this checkout id already recorded", store.ErrDuplicate)
	ErrDuplicateReceipt   = fmt.Errorf("%w: payment with this receipt already recorded", store.ErrDuplicate)
	ErrDuplicateReference = fmt.Errorf("%w: payment reference already used", store.ErrDuplicate)
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("payment_events")}
}

// dupErr maps a duplicate-key error to the sentinel for the violated index.
func dupErr(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "receipt"):
		return ErrDuplicateReceipt
	case strings.Contains(msg, "reference"):
		return ErrDuplicateReference
	default:
		return ErrDuplicateCheckout
	}
}

func (s *Store) Create(ctx context.Context, e models.PaymentEvent) (models.PaymentEvent, error) {
	e.ID = primitive.NewObjectID()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = models.PaymentPending
	}
	if _, err := s.c.InsertOne(ctx, e); err != nil {
		if wafflemongo.IsDup(err) {
			return models.PaymentEvent{}, dupErr(err)
		}
		return models.PaymentEvent{}, err
	}
	return e, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.PaymentEvent, error) {
	var e models.PaymentEvent
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return models.PaymentEvent{}, err
	}
	return e, nil
}

func (s *Store) GetByCheckoutID(ctx context.Context, checkoutID string) (models.PaymentEvent, error) {
	var e models.PaymentEvent
	if err := s.c.FindOne(ctx, bson.M{"checkout_id": checkoutID}).Decode(&e); err != nil {
		return models.PaymentEvent{}, err
	}
	return e, nil
}

// MarkInitiated records the provider's identifiers once the payment request
// has been accepted.
func (s *Store) MarkInitiated(ctx context.Context, id primitive.ObjectID, checkoutID, merchantRequestID string, at time.Time) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PaymentPending},
		bson.M{"$set": bson.M{
			"status":              models.PaymentInitiated,
			"checkout_id":         checkoutID,
			"merchant_request_id": merchantRequestID,
			"initiated_at":        at,
		}},
	)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateCheckout
		}
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// MarkInitiationFailed closes a pending event whose payment request was refused.
func (s *Store) MarkInitiationFailed(ctx context.Context, id primitive.ObjectID, reason string, at time.Time) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.PaymentPending},
		bson.M{"$set": bson.M{
			"status":       models.PaymentFailed,
			"outcome":      models.MatchFailed,
			"result_desc":  reason,
			"completed_at": at,
		}},
	)
	return err
}

// Finalize writes the terminal state for checkoutID unless the event is
// already terminal.
func (s *Store) Finalize(ctx context.Context, checkoutID string, f store.Finalization) (bool, error) {
	set := bson.M{
		"status":       f.Status,
		"result_code":  f.ResultCode,
		"result_desc":  f.ResultDesc,
		"raw_payload":  f.RawPayload,
		"completed_at": f.At,
	}
	if f.Receipt != nil {
		set["receipt"] = *f.Receipt
	}
	if f.Amount != nil {
		set["amount"] = *f.Amount
	}
	if f.Phone != "" {
		set["phone"] = f.Phone
	}
	if f.Status != models.PaymentCompleted {
		set["outcome"] = models.MatchFailed
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"checkout_id": checkoutID,
			"status":      bson.M{"$nin": models.TerminalPaymentStatuses},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return false, ErrDuplicateReceipt
		}
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// MarkProcessingFailed flags a completed event that has no outcome yet. It
// reports false when the event is not completed or already has an outcome.
func (s *Store) MarkProcessingFailed(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"_id":     id,
			"status":  models.PaymentCompleted,
			"outcome": bson.M{"$in": bson.A{nil, ""}},
		},
		bson.M{"$set": bson.M{"outcome": models.MatchProcessingFailed}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// RecordLateSuccess stores the details of a success callback for an event
// the sweeper already timed out. The status stays timeout. It reports false
// when the event is not timed out or a late success was already recorded.
func (s *Store) RecordLateSuccess(ctx context.Context, checkoutID string, f store.Finalization) (bool, error) {
	set := bson.M{
		"outcome":     models.MatchLateSuccess,
		"result_code": f.ResultCode,
		"result_desc": f.ResultDesc,
		"raw_payload": f.RawPayload,
	}
	if f.Receipt != nil {
		set["receipt"] = *f.Receipt
	}
	if f.Amount != nil {
		set["amount"] = *f.Amount
	}
	if f.Phone != "" {
		set["phone"] = f.Phone
	}

	res, err := s.c.UpdateOne(ctx,
		bson.M{
			"checkout_id": checkoutID,
			"status":      models.PaymentTimeout,
			"outcome":     bson.M{"$ne": models.MatchLateSuccess},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		if wafflemongo.IsDup(err) {
			return false, ErrDuplicateReceipt
		}
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// Link records what reconciliation matched the event to.
func (s *Store) Link(ctx context.Context, id primitive.ObjectID, l store.Linkage) error {
	set := bson.M{"outcome": l.Outcome}
	if l.MembershipID != nil {
		set["linked_membership_id"] = *l.MembershipID
	}
	if l.GroupID != nil {
		set["group_id"] = *l.GroupID
	}
	if l.ContributionID != nil {
		set["linked_contribution_id"] = *l.ContributionID
	}
	if l.RepaymentID != nil {
		set["linked_repayment_id"] = *l.RepaymentID
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ExpireStale moves pending and initiated events created before cutoff to timeout.
func (s *Store) ExpireStale(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"status":     bson.M{"$in": []models.PaymentStatus{models.PaymentPending, models.PaymentInitiated}},
			"created_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":       models.PaymentTimeout,
			"outcome":      models.MatchFailed,
			"result_desc":  "no callback received before timeout",
			"completed_at": at,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListUnmatched returns events holding money that reconciliation could not
// apply, most recent first.
func (s *Store) ListUnmatched(ctx context.Context, limit int64) ([]models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	cur, err := s.c.Find(ctx,
		bson.M{"$or": []bson.M{
			{"status": models.PaymentCompleted, "outcome": bson.M{"$in": models.ReviewOutcomes}},
			{"outcome": models.MatchLateSuccess},
		}},
		options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.PaymentEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
