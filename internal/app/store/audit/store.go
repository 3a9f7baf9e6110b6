// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event categories
const (
	CategoryLoan       = "loan"
	CategoryPayment    = "payment"
	CategoryMembership = "membership"
)

// Loan event types
const (
	EventLoanApplied       = "loan_applied"
	EventLoanApproved      = "loan_approved"
	EventLoanRejected      = "loan_rejected"
	EventLoanRepaid        = "loan_repaid"
	EventLoanDefaulted     = "loan_defaulted"
	EventRepaymentPosted   = "repayment_posted"
	EventRepaymentRefused  = "repayment_refused"
	EventInterestAccrued   = "interest_accrued"
	EventProfitDistributed = "profit_distributed"
	EventProfitSharePaid   = "profit_share_paid"
)

// Payment event types
const (
	EventPaymentInitiated        = "payment_initiated"
	EventPaymentInitiationFailed = "payment_initiation_failed"
	EventPaymentReconciled       = "payment_reconciled"
	EventPaymentUnmatched        = "payment_unmatched"
	EventPaymentUnknownPayer     = "payment_unknown_payer"
	EventPaymentFailed           = "payment_failed"
	EventPaymentDuplicate        = "payment_duplicate_callback"
	EventPaymentExpired          = "payment_expired"
)

// Membership event types
const (
	EventGroupCreated          = "group_created"
	EventGroupDeleted          = "group_deleted"
	EventGroupStatusChanged    = "group_status_changed"
	EventPersonRegistered      = "person_registered"
	EventPersonDeleted         = "person_deleted"
	EventPersonStatusChanged   = "person_status_changed"
	EventMemberJoined          = "member_joined"
	EventMemberStatusChanged   = "member_status_changed"
	EventMemberAdminChanged    = "member_admin_changed"
	EventContributionRecorded  = "contribution_recorded"
	EventContributionConfirmed = "contribution_confirmed"
)

// Event represents an audit event.
type Event struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty"`
	Timestamp time.Time           `bson:"timestamp"`
	GroupID   *primitive.ObjectID `bson:"group_id,omitempty"`

	// Event classification
	Category  string `bson:"category"`
	EventType string `bson:"event_type"`

	// Who and what
	ActorID   *primitive.ObjectID `bson:"actor_id,omitempty"`   // acting membership; nil for system actions
	SubjectID *primitive.ObjectID `bson:"subject_id,omitempty"` // loan, contribution, payment event, ...

	// Outcome
	Success       bool   `bson:"success"`
	FailureReason string `bson:"failure_reason,omitempty"`

	// Additional details (varies by event type)
	Details map[string]string `bson:"details,omitempty"`
}

// QueryFilter defines filters for querying audit events.
type QueryFilter struct {
	GroupID   *primitive.ObjectID
	SubjectID *primitive.ObjectID
	Category  string
	EventType string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int64
	Offset    int64
}

func (f QueryFilter) bson() bson.M {
	query := bson.M{}
	if f.GroupID != nil {
		query["group_id"] = f.GroupID
	}
	if f.SubjectID != nil {
		query["subject_id"] = f.SubjectID
	}
	if f.Category != "" {
		query["category"] = f.Category
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		tq := bson.M{}
		if f.StartTime != nil {
			tq["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			tq["$lte"] = *f.EndTime
		}
		query["timestamp"] = tq
	}
	return query
}

// Store manages audit event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("audit_events")}
}

// Log records an audit event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

// Query retrieves audit events matching the given filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cursor, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountByFilter returns the count of events matching the filter.
func (s *Store) CountByFilter(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.bson())
}

// GetBySubject retrieves the recent history of one entity.
func (s *Store) GetBySubject(ctx context.Context, subjectID primitive.ObjectID, limit int64) ([]Event, error) {
	return s.Query(ctx, QueryFilter{SubjectID: &subjectID, Limit: limit})
}
