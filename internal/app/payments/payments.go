// Package payments starts mobile-money collections for contributions and
// loan repayments. The provider's terminal callback is handled by reconcile.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Initiation is the provider's acknowledgement of a payment request.
type Initiation struct {
	CheckoutID        string
	MerchantRequestID string
}

// MobileMoney asks a provider to collect amount from phone. The outcome
// arrives later as a callback carrying the returned checkout id.
type MobileMoney interface {
	InitiatePayment(ctx context.Context, phone string, amount money.Amount, reference string) (Initiation, error)
}

// ErrProviderUnavailable is returned by Disabled.
var ErrProviderUnavailable = errors.New("mobile-money provider is not configured")

// Disabled is the MobileMoney used when no provider is configured.
type Disabled struct{}

func (Disabled) InitiatePayment(context.Context, string, money.Amount, string) (Initiation, error) {
	return Initiation{}, ErrProviderUnavailable
}

// referencePrefix marks references generated here; unsolicited payments use
// the provider's checkout id instead.
const referencePrefix = "JF"

// NewReference returns a 12-character account reference: the prefix and
// ten uppercase hex digits from a random UUID.
func NewReference() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return referencePrefix + strings.ToUpper(hex[:10])
}

type Service struct {
	events   store.PaymentEvents
	loans    store.Loans
	chamas   *chamas.Service
	dir      *chamas.Directory
	provider MobileMoney
	audit    *auditlog.Logger
	log      *zap.Logger
	newRef   func() string
}

func New(stores store.Set, cs *chamas.Service, provider MobileMoney, audit *auditlog.Logger, log *zap.Logger) *Service {
	if provider == nil {
		provider = Disabled{}
	}
	return &Service{
		events:   stores.PaymentEvents,
		loans:    stores.Loans,
		chamas:   cs,
		dir:      cs.Directory(),
		provider: provider,
		audit:    audit,
		log:      log,
		newRef:   NewReference,
	}
}

// InitiateContribution records an unconfirmed contribution and asks the
// provider to collect it from the member's phone.
func (s *Service) InitiateContribution(ctx context.Context, membershipID primitive.ObjectID, amount money.Amount) (models.PaymentEvent, models.Contribution, error) {
	c, err := s.chamas.RecordContribution(ctx, membershipID, amount, time.Time{}, nil)
	if err != nil {
		return models.PaymentEvent{}, models.Contribution{}, err
	}
	mc, err := s.dir.Resolve(ctx, membershipID)
	if err != nil {
		return models.PaymentEvent{}, models.Contribution{}, err
	}

	ev, err := s.start(ctx, models.PaymentEvent{
		Phone:          mc.Person.Phone,
		Amount:         amount,
		Type:           models.PaymentContribution,
		MembershipID:   &mc.Membership.ID,
		GroupID:        &mc.Group.ID,
		ContributionID: &c.ID,
	})
	return ev, c, err
}

// InitiateRepayment asks the provider to collect amount toward an approved
// loan. The amount may not exceed the balance due.
func (s *Service) InitiateRepayment(ctx context.Context, loanID primitive.ObjectID, amount money.Amount) (models.PaymentEvent, error) {
	if !amount.IsPositive() {
		return models.PaymentEvent{}, apperr.New(apperr.ErrInvalidAmount, "repayment amount must be positive")
	}
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return models.PaymentEvent{}, store.NotFound(err, "loan")
	}
	if loan.Status != models.LoanApproved {
		return models.PaymentEvent{}, apperr.Newf(apperr.ErrIllegalTransition, "cannot repay a %s loan", loan.Status)
	}
	if balance := loan.BalanceDue(); amount.GreaterThan(balance) {
		return models.PaymentEvent{}, apperr.Newf(apperr.ErrOverpayment, "repayment of %s exceeds balance due of %s", amount, balance)
	}
	mc, err := s.dir.Resolve(ctx, loan.MembershipID)
	if err != nil {
		return models.PaymentEvent{}, err
	}

	return s.start(ctx, models.PaymentEvent{
		Phone:        mc.Person.Phone,
		Amount:       amount,
		Type:         models.PaymentLoanRepayment,
		MembershipID: &mc.Membership.ID,
		GroupID:      &mc.Group.ID,
		LoanID:       &loan.ID,
	})
}

// start records ev as pending, calls the provider and records the result.
func (s *Service) start(ctx context.Context, ev models.PaymentEvent) (models.PaymentEvent, error) {
	ev.Reference = s.newRef()
	ev.Status = models.PaymentPending
	ev, err := s.events.Create(ctx, ev)
	if err != nil {
		return models.PaymentEvent{}, err
	}

	init, err := s.provider.InitiatePayment(ctx, ev.Phone, ev.Amount, ev.Reference)
	if err != nil {
		now := time.Now().UTC()
		if merr := s.events.MarkInitiationFailed(ctx, ev.ID, err.Error(), now); merr != nil {
			s.log.Error("failed to record payment initiation failure",
				zap.Error(merr), zap.String("event_id", ev.ID.Hex()))
		}
		ev.Status = models.PaymentFailed
		ev.Outcome = models.MatchFailed
		ev.ResultDesc = err.Error()
		ev.CompletedAt = &now
		s.log.Warn("payment initiation failed",
			zap.Error(err),
			zap.String("reference", ev.Reference),
			zap.String("type", string(ev.Type)))
		s.audit.PaymentInitiationFailed(ctx, ev, err.Error())
		return ev, fmt.Errorf("initiate payment %s: %w", ev.Reference, err)
	}

	now := time.Now().UTC()
	if err := s.events.MarkInitiated(ctx, ev.ID, init.CheckoutID, init.MerchantRequestID, now); err != nil {
		return models.PaymentEvent{}, err
	}
	ev.Status = models.PaymentInitiated
	ev.CheckoutID = &init.CheckoutID
	ev.MerchantRequestID = init.MerchantRequestID
	ev.InitiatedAt = &now
	s.log.Info("payment initiated",
		zap.String("reference", ev.Reference),
		zap.String("checkout_id", init.CheckoutID),
		zap.String("amount", ev.Amount.String()))
	s.audit.PaymentInitiated(ctx, ev)
	return ev, nil
}
