// Package reconcile applies mobile-money payment callbacks to the ledger.
//
// Each callback is keyed by its checkout id. The payment event is moved to
// a terminal status with a single guarded update before anything else is
// written, so a repeated delivery finds the event terminal and changes
// nothing. All writes for one callback run in one transaction. Where the
// deployment cannot run one and matching fails after the terminal status
// was written, the event is flagged processing_failed and listed for manual
// reconciliation.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/loans"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	paymenteventstore "github.com/dalemusser/jamiifunds/internal/app/store/paymentevents"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/app/system/normalize"
	"github.com/dalemusser/jamiifunds/internal/app/system/txn"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Provider result codes with a dedicated status.
const (
	ResultSuccess   = 0
	ResultCancelled = 1032
	ResultTimeout   = 1037
)

// repaymentAttempts bounds retries of a repayment that lost a race.
const repaymentAttempts = 3

// StatusForResultCode maps a provider result code to a terminal status.
func StatusForResultCode(code int) models.PaymentStatus {
	switch code {
	case ResultSuccess:
		return models.PaymentCompleted
	case ResultCancelled:
		return models.PaymentCancelled
	case ResultTimeout:
		return models.PaymentTimeout
	default:
		return models.PaymentFailed
	}
}

// Callback is the provider-neutral content of a terminal payment callback.
// Amount, Receipt and Phone are only present on success.
type Callback struct {
	CheckoutID        string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	Amount            *money.Amount
	Receipt           string
	Phone             string
	RawPayload        string
}

// Outcome describes what processing a callback did.
type Outcome struct {
	EventID        primitive.ObjectID   `json:"event_id"`
	Status         models.PaymentStatus `json:"status"`
	Match          models.MatchOutcome  `json:"match,omitempty"`
	Duplicate      bool                 `json:"duplicate,omitempty"`
	MembershipID   *primitive.ObjectID  `json:"membership_id,omitempty"`
	ContributionID *primitive.ObjectID  `json:"contribution_id,omitempty"`
	RepaymentID    *primitive.ObjectID  `json:"repayment_id,omitempty"`
}

var errAlreadyFinal = errors.New("payment event already final")

type Engine struct {
	events        store.PaymentEvents
	contributions store.Contributions
	loanStore     store.Loans
	dir           *chamas.Directory
	loans         *loans.Service
	txn           txn.Runner
	audit         *auditlog.Logger
	log           *zap.Logger
	countryCode   string
}

func New(stores store.Set, dir *chamas.Directory, loanSvc *loans.Service, runner txn.Runner, audit *auditlog.Logger, log *zap.Logger, countryCode string) *Engine {
	return &Engine{
		events:        stores.PaymentEvents,
		contributions: stores.Contributions,
		loanStore:     stores.Loans,
		dir:           dir,
		loans:         loanSvc,
		txn:           runner,
		audit:         audit,
		log:           log,
		countryCode:   countryCode,
	}
}

// Process applies cb exactly once.
//
// A payer that matches no membership is recorded on the event and reported
// as an apperr.ErrUnknownPayer error alongside a valid Outcome; callers
// should acknowledge the callback (see apperr.IsNonFatal). Any other error
// means the ledger was not updated: either nothing was committed and the
// delivery may be retried, or the event was flagged processing_failed.
func (e *Engine) Process(ctx context.Context, cb Callback) (Outcome, error) {
	if cb.CheckoutID == "" {
		return Outcome{}, apperr.New(apperr.ErrValidation, "callback has no checkout id")
	}

	ev, err := e.load(ctx, cb)
	if err != nil {
		return Outcome{}, err
	}
	if ev.Status.IsTerminal() {
		return e.duplicate(ctx, ev, cb)
	}

	status := StatusForResultCode(cb.ResultCode)
	var (
		out       Outcome
		payerErr  error
		finalized bool
	)
	err = e.txn.Run(ctx, func(ctx context.Context) error {
		fin := e.finalization(cb, status)
		ok, err := e.events.Finalize(ctx, cb.CheckoutID, fin)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyFinal
		}
		finalized = true
		ev.Status = status
		ev.ResultDesc = cb.ResultDesc
		ev.Receipt = fin.Receipt
		if fin.Amount != nil {
			ev.Amount = *fin.Amount
		}
		if fin.Phone != "" {
			ev.Phone = fin.Phone
		}

		out = Outcome{EventID: ev.ID, Status: status}
		if status != models.PaymentCompleted {
			out.Match = models.MatchFailed
			return nil
		}
		res, err := e.match(ctx, ev)
		if err != nil {
			return err
		}
		out, payerErr = res.Outcome, res.payerErr
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyFinal), errors.Is(err, paymenteventstore.ErrDuplicateReceipt):
		stored, gerr := e.events.GetByCheckoutID(ctx, cb.CheckoutID)
		if gerr != nil {
			stored = ev
		}
		return e.duplicate(ctx, stored, cb)
	case err != nil:
		e.log.Error("payment reconciliation failed",
			zap.Error(err),
			zap.String("checkout_id", cb.CheckoutID))
		if finalized {
			e.flagFailed(ctx, ev)
		}
		return Outcome{}, err
	}

	e.report(ctx, ev, cb, out, payerErr)
	return out, payerErr
}

// load returns the event for cb's checkout id, recording an unsolicited
// contribution event when none exists.
func (e *Engine) load(ctx context.Context, cb Callback) (models.PaymentEvent, error) {
	ev, err := e.events.GetByCheckoutID(ctx, cb.CheckoutID)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.PaymentEvent{}, err
	}

	checkoutID := cb.CheckoutID
	unsolicited := models.PaymentEvent{
		Reference:         cb.CheckoutID,
		CheckoutID:        &checkoutID,
		MerchantRequestID: cb.MerchantRequestID,
		Phone:             e.phone(cb.Phone),
		Type:              models.PaymentContribution,
		Status:            models.PaymentInitiated,
	}
	if cb.Amount != nil {
		unsolicited.Amount = *cb.Amount
	}
	ev, err = e.events.Create(ctx, unsolicited)
	if errors.Is(err, store.ErrDuplicate) {
		// Another delivery of the same callback inserted it first.
		return e.events.GetByCheckoutID(ctx, cb.CheckoutID)
	}
	if err != nil {
		return models.PaymentEvent{}, err
	}
	e.log.Info("recorded unsolicited payment",
		zap.String("checkout_id", cb.CheckoutID),
		zap.String("event_id", ev.ID.Hex()))
	return ev, nil
}

// phone returns the normalized form of raw, or raw unchanged when it cannot
// be normalized so that the event still records what the provider sent.
func (e *Engine) phone(raw string) string {
	if raw == "" {
		return ""
	}
	if p, err := normalize.Phone(raw, e.countryCode); err == nil {
		return p
	}
	return raw
}

func (e *Engine) finalization(cb Callback, status models.PaymentStatus) store.Finalization {
	return store.Finalization{
		Status:     status,
		ResultCode: cb.ResultCode,
		ResultDesc: cb.ResultDesc,
		Receipt:    normalize.TrimRef(cb.Receipt),
		Amount:     cb.Amount,
		Phone:      e.phone(cb.Phone),
		RawPayload: cb.RawPayload,
		At:         time.Now().UTC(),
	}
}

// flagFailed marks ev processing_failed when its terminal status survived a
// failed transaction. A rolled-back event is still open and is left alone.
func (e *Engine) flagFailed(ctx context.Context, ev models.PaymentEvent) {
	ok, err := e.events.MarkProcessingFailed(ctx, ev.ID)
	if err != nil {
		e.log.Error("could not flag payment for manual reconciliation",
			zap.Error(err),
			zap.String("event_id", ev.ID.Hex()))
		return
	}
	if ok {
		ev.Outcome = models.MatchProcessingFailed
		e.log.Warn("payment left for manual reconciliation after a processing error",
			zap.String("event_id", ev.ID.Hex()))
		e.audit.PaymentUnmatched(ctx, ev, "processing failed after the payment was finalized")
	}
}

func (e *Engine) duplicate(ctx context.Context, ev models.PaymentEvent, cb Callback) (Outcome, error) {
	if ev.Status == models.PaymentTimeout && cb.ResultCode == ResultSuccess {
		return e.lateSuccess(ctx, ev, cb)
	}
	e.log.Info("duplicate payment callback ignored",
		zap.String("checkout_id", cb.CheckoutID),
		zap.String("status", string(ev.Status)))
	e.audit.DuplicateCallback(ctx, ev)
	return duplicateOutcome(ev), nil
}

// lateSuccess records a success callback for an event the sweeper timed out.
// The money is not applied; the event is listed for manual reconciliation.
func (e *Engine) lateSuccess(ctx context.Context, ev models.PaymentEvent, cb Callback) (Outcome, error) {
	e.log.Warn("success callback arrived after payment timed out",
		zap.String("checkout_id", cb.CheckoutID),
		zap.String("event_id", ev.ID.Hex()))

	ok, err := e.events.RecordLateSuccess(ctx, cb.CheckoutID, e.finalization(cb, ev.Status))
	switch {
	case errors.Is(err, paymenteventstore.ErrDuplicateReceipt):
		ok = false
	case err != nil:
		return Outcome{}, err
	}
	if stored, gerr := e.events.GetByCheckoutID(ctx, cb.CheckoutID); gerr == nil {
		ev = stored
	}
	if ok {
		e.audit.PaymentUnmatched(ctx, ev, "success reported after the payment timed out")
	} else {
		e.audit.DuplicateCallback(ctx, ev)
	}
	return duplicateOutcome(ev), nil
}

func duplicateOutcome(ev models.PaymentEvent) Outcome {
	return Outcome{
		EventID:        ev.ID,
		Status:         ev.Status,
		Match:          ev.Outcome,
		Duplicate:      true,
		MembershipID:   ev.LinkedMembershipID,
		ContributionID: ev.LinkedContributionID,
		RepaymentID:    ev.LinkedRepaymentID,
	}
}

func (e *Engine) report(ctx context.Context, ev models.PaymentEvent, cb Callback, out Outcome, payerErr error) {
	ev.Outcome = out.Match
	switch out.Match {
	case models.MatchFailed:
		e.audit.PaymentFailed(ctx, ev, cb.ResultCode, cb.ResultDesc)
	case models.MatchUnknownPayer:
		e.log.Warn("payment from unknown payer left for manual reconciliation",
			zap.String("checkout_id", cb.CheckoutID),
			zap.String("reason", apperr.Message(payerErr)))
		e.audit.PaymentUnknownPayer(ctx, ev)
	case models.MatchNone:
		e.log.Warn("payment matched nothing; left for manual reconciliation",
			zap.String("checkout_id", cb.CheckoutID),
			zap.String("type", string(ev.Type)),
			zap.String("amount", ev.Amount.String()))
		e.audit.PaymentUnmatched(ctx, ev, "no pending entry for this amount")
	case models.MatchContribution:
		e.audit.PaymentReconciled(ctx, ev, out.Match, *out.ContributionID)
	case models.MatchRepayment:
		e.audit.PaymentReconciled(ctx, ev, out.Match, *out.RepaymentID)
	}
}
