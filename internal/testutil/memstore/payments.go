package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/store"
	paymenteventstore "github.com/dalemusser/jamiifunds/internal/app/store/paymentevents"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type PaymentEvents struct{ db *DB }

// uniqueLocked checks e against the reference, checkout_id and receipt
// indexes. Callers hold db.mu.
func (s PaymentEvents) uniqueLocked(e models.PaymentEvent) error {
	for id, other := range s.db.payments {
		if id == e.ID {
			continue
		}
		if other.Reference == e.Reference {
			return paymenteventstore.ErrDuplicateReference
		}
		if e.CheckoutID != nil && other.CheckoutID != nil && *e.CheckoutID == *other.CheckoutID {
			return paymenteventstore.ErrDuplicateCheckout
		}
		if e.Receipt != nil && other.Receipt != nil && *e.Receipt == *other.Receipt {
			return paymenteventstore.ErrDuplicateReceipt
		}
	}
	return nil
}

func (s PaymentEvents) Create(_ context.Context, e models.PaymentEvent) (models.PaymentEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e.ID = primitive.NewObjectID()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = models.PaymentPending
	}
	if err := s.uniqueLocked(e); err != nil {
		return models.PaymentEvent{}, err
	}
	s.db.payments[e.ID] = e
	return e, nil
}

func (s PaymentEvents) GetByID(_ context.Context, id primitive.ObjectID) (models.PaymentEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.payments[id]
	if !ok {
		return models.PaymentEvent{}, mongo.ErrNoDocuments
	}
	return e, nil
}

func (s PaymentEvents) byCheckoutLocked(checkoutID string) (models.PaymentEvent, bool) {
	for _, e := range s.db.payments {
		if e.CheckoutID != nil && *e.CheckoutID == checkoutID {
			return e, true
		}
	}
	return models.PaymentEvent{}, false
}

func (s PaymentEvents) GetByCheckoutID(_ context.Context, checkoutID string) (models.PaymentEvent, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.byCheckoutLocked(checkoutID)
	if !ok {
		return models.PaymentEvent{}, mongo.ErrNoDocuments
	}
	return e, nil
}

func (s PaymentEvents) MarkInitiated(_ context.Context, id primitive.ObjectID, checkoutID, merchantRequestID string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.payments[id]
	if !ok || e.Status != models.PaymentPending {
		return mongo.ErrNoDocuments
	}
	e.Status = models.PaymentInitiated
	e.CheckoutID = &checkoutID
	e.MerchantRequestID = merchantRequestID
	e.InitiatedAt = &at
	if err := s.uniqueLocked(e); err != nil {
		return err
	}
	s.db.payments[id] = e
	return nil
}

func (s PaymentEvents) MarkInitiationFailed(_ context.Context, id primitive.ObjectID, reason string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.payments[id]
	if !ok || e.Status != models.PaymentPending {
		return nil
	}
	e.Status = models.PaymentFailed
	e.Outcome = models.MatchFailed
	e.ResultDesc = reason
	e.CompletedAt = &at
	s.db.payments[id] = e
	return nil
}

func (s PaymentEvents) Finalize(_ context.Context, checkoutID string, f store.Finalization) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.byCheckoutLocked(checkoutID)
	if !ok || e.Status.IsTerminal() {
		return false, nil
	}
	code := f.ResultCode
	e.Status = f.Status
	e.ResultCode = &code
	e.ResultDesc = f.ResultDesc
	e.RawPayload = f.RawPayload
	at := f.At
	e.CompletedAt = &at
	if f.Receipt != nil {
		e.Receipt = f.Receipt
	}
	if f.Amount != nil {
		e.Amount = *f.Amount
	}
	if f.Phone != "" {
		e.Phone = f.Phone
	}
	if f.Status != models.PaymentCompleted {
		e.Outcome = models.MatchFailed
	}
	if err := s.uniqueLocked(e); err != nil {
		return false, err
	}
	s.db.payments[e.ID] = e
	return true, nil
}

func (s PaymentEvents) Link(_ context.Context, id primitive.ObjectID, l store.Linkage) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.payments[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	e.Outcome = l.Outcome
	if l.MembershipID != nil {
		e.LinkedMembershipID = l.MembershipID
	}
	if l.GroupID != nil {
		e.GroupID = l.GroupID
	}
	if l.ContributionID != nil {
		e.LinkedContributionID = l.ContributionID
	}
	if l.RepaymentID != nil {
		e.LinkedRepaymentID = l.RepaymentID
	}
	s.db.payments[id] = e
	return nil
}

func (s PaymentEvents) MarkProcessingFailed(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.db.payments[id]
	if !ok || e.Status != models.PaymentCompleted || e.Outcome != "" {
		return false, nil
	}
	e.Outcome = models.MatchProcessingFailed
	s.db.payments[id] = e
	return true, nil
}

func (s PaymentEvents) RecordLateSuccess(_ context.Context, checkoutID string, f store.Finalization) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	e, ok := s.byCheckoutLocked(checkoutID)
	if !ok || e.Status != models.PaymentTimeout || e.Outcome == models.MatchLateSuccess {
		return false, nil
	}
	code := f.ResultCode
	e.Outcome = models.MatchLateSuccess
	e.ResultCode = &code
	e.ResultDesc = f.ResultDesc
	e.RawPayload = f.RawPayload
	if f.Receipt != nil {
		e.Receipt = f.Receipt
	}
	if f.Amount != nil {
		e.Amount = *f.Amount
	}
	if f.Phone != "" {
		e.Phone = f.Phone
	}
	if err := s.uniqueLocked(e); err != nil {
		return false, err
	}
	s.db.payments[e.ID] = e
	return true, nil
}

func (s PaymentEvents) ExpireStale(_ context.Context, cutoff, at time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for id, e := range s.db.payments {
		if (e.Status == models.PaymentPending || e.Status == models.PaymentInitiated) && e.CreatedAt.Before(cutoff) {
			e.Status = models.PaymentTimeout
			e.Outcome = models.MatchFailed
			e.ResultDesc = "no callback received before timeout"
			done := at
			e.CompletedAt = &done
			s.db.payments[id] = e
			n++
		}
	}
	return n, nil
}

func (s PaymentEvents) ListUnmatched(_ context.Context, limit int64) ([]models.PaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []models.PaymentEvent
	for _, e := range s.db.payments {
		if e.NeedsReview() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CompletedAt, out[j].CompletedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return idLess(out[j].ID, out[i].ID)
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
