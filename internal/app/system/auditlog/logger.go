// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/jamiifunds/internal/app/store/audit"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Sink persists audit events. *audit.Store satisfies it.
type Sink interface {
	Log(ctx context.Context, event audit.Event) error
}

// Config holds audit logging configuration.
// Each value is "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only) or "off".
type Config struct {
	Loan       string
	Payment    string
	Membership string
}

// Logger provides convenience methods for logging audit events.
// It logs to the sink (normally audit.Store) and to structured logs via zap.
type Logger struct {
	sink   Sink
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(sink Sink, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		sink:   sink,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.GroupID != nil {
		fields = append(fields, zap.String("group_id", event.GroupID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.SubjectID != nil {
		fields = append(fields, zap.String("subject_id", event.SubjectID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// A nil Logger is a no-op so services can run without auditing in tests.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryLoan:
		setting = l.config.Loan
	case audit.CategoryPayment:
		setting = l.config.Payment
	case audit.CategoryMembership:
		setting = l.config.Membership
	default:
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.sink != nil {
		if err := l.sink.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func idPtr(id primitive.ObjectID) *primitive.ObjectID {
	if id.IsZero() {
		return nil
	}
	return &id
}

// --- Loan Events ---

func (l *Logger) loanEvent(eventType string, loan models.Loan, actor *primitive.ObjectID, details map[string]string) audit.Event {
	if details == nil {
		details = map[string]string{}
	}
	details["membership_id"] = loan.MembershipID.Hex()
	details["status"] = string(loan.Status)
	return audit.Event{
		Category:  audit.CategoryLoan,
		EventType: eventType,
		GroupID:   idPtr(loan.GroupID),
		ActorID:   actor,
		SubjectID: idPtr(loan.ID),
		Success:   true,
		Details:   details,
	}
}

// LoanApplied logs a new loan application.
func (l *Logger) LoanApplied(ctx context.Context, loan models.Loan, actor *primitive.ObjectID) {
	l.Log(ctx, l.loanEvent(audit.EventLoanApplied, loan, actor, map[string]string{
		"principal":       loan.Principal.String(),
		"rate":            loan.InterestRate.String(),
		"tenure_months":   strconv.Itoa(loan.TenureMonths),
		"total_repayable": loan.TotalRepayable.String(),
	}))
}

// LoanApproved logs an approval.
func (l *Logger) LoanApproved(ctx context.Context, loan models.Loan, actor *primitive.ObjectID) {
	l.Log(ctx, l.loanEvent(audit.EventLoanApproved, loan, actor, nil))
}

// LoanRejected logs a rejection.
func (l *Logger) LoanRejected(ctx context.Context, loan models.Loan, actor *primitive.ObjectID) {
	l.Log(ctx, l.loanEvent(audit.EventLoanRejected, loan, actor, nil))
}

// LoanRepaid logs a loan reaching a zero balance or being closed by an admin.
func (l *Logger) LoanRepaid(ctx context.Context, loan models.Loan, actor *primitive.ObjectID) {
	l.Log(ctx, l.loanEvent(audit.EventLoanRepaid, loan, actor, map[string]string{
		"total_paid": loan.TotalPaid.String(),
	}))
}

// LoanDefaulted logs a loan written off as defaulted.
func (l *Logger) LoanDefaulted(ctx context.Context, loan models.Loan, actor *primitive.ObjectID) {
	l.Log(ctx, l.loanEvent(audit.EventLoanDefaulted, loan, actor, map[string]string{
		"balance_due": loan.BalanceDue().String(),
	}))
}

// RepaymentPosted logs a repayment applied to a loan.
func (l *Logger) RepaymentPosted(ctx context.Context, loan models.Loan, r models.Repayment, balance money.Amount) {
	l.Log(ctx, l.loanEvent(audit.EventRepaymentPosted, loan, nil, map[string]string{
		"repayment_id": r.ID.Hex(),
		"amount":       r.Amount.String(),
		"balance_due":  balance.String(),
	}))
}

// RepaymentRefused logs a repayment that could not be applied.
func (l *Logger) RepaymentRefused(ctx context.Context, loanID primitive.ObjectID, groupID *primitive.ObjectID, amount money.Amount, reason string) {
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryLoan,
		EventType:     audit.EventRepaymentRefused,
		GroupID:       groupID,
		SubjectID:     idPtr(loanID),
		Success:       false,
		FailureReason: reason,
		Details: map[string]string{
			"amount": amount.String(),
		},
	})
}

// InterestAccrued logs a monthly interest entry recorded against a loan.
func (l *Logger) InterestAccrued(ctx context.Context, loan models.Loan, e models.InterestEntry) {
	l.Log(ctx, l.loanEvent(audit.EventInterestAccrued, loan, nil, map[string]string{
		"entry_id":    e.ID.Hex(),
		"month":       e.Month.Format("2006-01"),
		"installment": strconv.Itoa(e.Installment),
		"amount":      e.Amount.String(),
	}))
}

// ProfitDistributed logs a year's profit split across the members of a chama.
func (l *Logger) ProfitDistributed(ctx context.Context, d models.ProfitDistribution, shares int, actor *primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryLoan,
		EventType: audit.EventProfitDistributed,
		GroupID:   idPtr(d.GroupID),
		ActorID:   actor,
		SubjectID: idPtr(d.ID),
		Success:   true,
		Details: map[string]string{
			"year":          strconv.Itoa(d.Year),
			"total_profit":  d.TotalProfit.String(),
			"total_savings": d.TotalSavings.String(),
			"shares":        strconv.Itoa(shares),
		},
	})
}

// ProfitSharePaid logs a member's profit share being paid out.
func (l *Logger) ProfitSharePaid(ctx context.Context, sh models.ProfitShare, actor *primitive.ObjectID) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryLoan,
		EventType: audit.EventProfitSharePaid,
		GroupID:   idPtr(sh.GroupID),
		ActorID:   actor,
		SubjectID: idPtr(sh.ID),
		Success:   true,
		Details: map[string]string{
			"distribution_id": sh.DistributionID.Hex(),
			"membership_id":   sh.MembershipID.Hex(),
			"amount":          sh.Amount.String(),
		},
	})
}

// --- Payment Events ---

func paymentEvent(eventType string, ev models.PaymentEvent, success bool, reason string) audit.Event {
	details := map[string]string{
		"reference": ev.Reference,
		"type":      string(ev.Type),
		"amount":    ev.Amount.String(),
		"status":    string(ev.Status),
	}
	if ev.CheckoutID != nil {
		details["checkout_id"] = *ev.CheckoutID
	}
	if ev.Receipt != nil {
		details["receipt"] = *ev.Receipt
	}
	return audit.Event{
		Category:      audit.CategoryPayment,
		EventType:     eventType,
		GroupID:       ev.GroupID,
		SubjectID:     idPtr(ev.ID),
		Success:       success,
		FailureReason: reason,
		Details:       details,
	}
}

// PaymentInitiated logs a payment request accepted by the provider.
func (l *Logger) PaymentInitiated(ctx context.Context, ev models.PaymentEvent) {
	l.Log(ctx, paymentEvent(audit.EventPaymentInitiated, ev, true, ""))
}

// PaymentInitiationFailed logs a payment request the provider refused.
func (l *Logger) PaymentInitiationFailed(ctx context.Context, ev models.PaymentEvent, reason string) {
	l.Log(ctx, paymentEvent(audit.EventPaymentInitiationFailed, ev, false, reason))
}

// PaymentReconciled logs a completed payment linked to a ledger entry.
func (l *Logger) PaymentReconciled(ctx context.Context, ev models.PaymentEvent, outcome models.MatchOutcome, linkedID primitive.ObjectID) {
	e := paymentEvent(audit.EventPaymentReconciled, ev, true, "")
	e.Details["outcome"] = string(outcome)
	e.Details["linked_id"] = linkedID.Hex()
	l.Log(ctx, e)
}

// PaymentUnmatched logs a completed payment left for manual reconciliation.
func (l *Logger) PaymentUnmatched(ctx context.Context, ev models.PaymentEvent, reason string) {
	l.Log(ctx, paymentEvent(audit.EventPaymentUnmatched, ev, false, reason))
}

// PaymentUnknownPayer logs a completed payment from a phone with no person.
func (l *Logger) PaymentUnknownPayer(ctx context.Context, ev models.PaymentEvent) {
	l.Log(ctx, paymentEvent(audit.EventPaymentUnknownPayer, ev, false, "no person registered for phone"))
}

// PaymentFailed logs a provider callback reporting a non-success result.
func (l *Logger) PaymentFailed(ctx context.Context, ev models.PaymentEvent, resultCode int, resultDesc string) {
	e := paymentEvent(audit.EventPaymentFailed, ev, false, resultDesc)
	e.Details["result_code"] = strconv.Itoa(resultCode)
	l.Log(ctx, e)
}

// DuplicateCallback logs a callback for an event that is already terminal.
func (l *Logger) DuplicateCallback(ctx context.Context, ev models.PaymentEvent) {
	l.Log(ctx, paymentEvent(audit.EventPaymentDuplicate, ev, true, ""))
}

// PaymentsExpired logs a sweep that timed out stale payment events.
func (l *Logger) PaymentsExpired(ctx context.Context, count int64) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryPayment,
		EventType: audit.EventPaymentExpired,
		Success:   true,
		Details: map[string]string{
			"count": strconv.FormatInt(count, 10),
		},
	})
}

// --- Membership Events ---

func membershipEvent(eventType string, groupID, subjectID primitive.ObjectID, actor *primitive.ObjectID, details map[string]string) audit.Event {
	return audit.Event{
		Category:  audit.CategoryMembership,
		EventType: eventType,
		GroupID:   idPtr(groupID),
		ActorID:   actor,
		SubjectID: idPtr(subjectID),
		Success:   true,
		Details:   details,
	}
}

// GroupCreated logs a new chama.
func (l *Logger) GroupCreated(ctx context.Context, g models.Group, actor *primitive.ObjectID) {
	l.Log(ctx, membershipEvent(audit.EventGroupCreated, g.ID, g.ID, actor, map[string]string{
		"name": g.Name,
	}))
}

// GroupDeleted logs a chama removed with everything it owned.
func (l *Logger) GroupDeleted(ctx context.Context, groupID primitive.ObjectID, actor *primitive.ObjectID, memberships, loans int64) {
	l.Log(ctx, membershipEvent(audit.EventGroupDeleted, groupID, groupID, actor, map[string]string{
		"memberships_deleted": strconv.FormatInt(memberships, 10),
		"loans_deleted":       strconv.FormatInt(loans, 10),
	}))
}

// GroupStatusChanged logs a chama being activated or deactivated.
func (l *Logger) GroupStatusChanged(ctx context.Context, groupID primitive.ObjectID, actor *primitive.ObjectID, active bool) {
	l.Log(ctx, membershipEvent(audit.EventGroupStatusChanged, groupID, groupID, actor, map[string]string{
		"active": strconv.FormatBool(active),
	}))
}

// PersonRegistered logs a new person.
func (l *Logger) PersonRegistered(ctx context.Context, p models.Person, actor *primitive.ObjectID) {
	l.Log(ctx, membershipEvent(audit.EventPersonRegistered, primitive.NilObjectID, p.ID, actor, map[string]string{
		"phone": p.Phone,
	}))
}

// PersonDeleted logs a person removed with their memberships.
func (l *Logger) PersonDeleted(ctx context.Context, personID primitive.ObjectID, actor *primitive.ObjectID, memberships int64) {
	l.Log(ctx, membershipEvent(audit.EventPersonDeleted, primitive.NilObjectID, personID, actor, map[string]string{
		"memberships_deleted": strconv.FormatInt(memberships, 10),
	}))
}

// PersonStatusChanged logs a person being activated or deactivated.
func (l *Logger) PersonStatusChanged(ctx context.Context, personID primitive.ObjectID, actor *primitive.ObjectID, active bool) {
	l.Log(ctx, membershipEvent(audit.EventPersonStatusChanged, primitive.NilObjectID, personID, actor, map[string]string{
		"active": strconv.FormatBool(active),
	}))
}

// MemberJoined logs a person joining a chama.
func (l *Logger) MemberJoined(ctx context.Context, m models.Membership, actor *primitive.ObjectID) {
	l.Log(ctx, membershipEvent(audit.EventMemberJoined, m.GroupID, m.ID, actor, map[string]string{
		"person_id": m.PersonID.Hex(),
		"is_admin":  strconv.FormatBool(m.IsAdmin),
	}))
}

// MemberStatusChanged logs a membership being activated or deactivated.
func (l *Logger) MemberStatusChanged(ctx context.Context, m models.Membership, actor *primitive.ObjectID, active bool) {
	l.Log(ctx, membershipEvent(audit.EventMemberStatusChanged, m.GroupID, m.ID, actor, map[string]string{
		"active": strconv.FormatBool(active),
	}))
}

// MemberAdminChanged logs a change to a member's admin flag.
func (l *Logger) MemberAdminChanged(ctx context.Context, m models.Membership, actor *primitive.ObjectID, isAdmin bool) {
	l.Log(ctx, membershipEvent(audit.EventMemberAdminChanged, m.GroupID, m.ID, actor, map[string]string{
		"is_admin": strconv.FormatBool(isAdmin),
	}))
}

// ContributionRecorded logs a contribution pledged or entered by hand.
func (l *Logger) ContributionRecorded(ctx context.Context, c models.Contribution, actor *primitive.ObjectID) {
	l.Log(ctx, membershipEvent(audit.EventContributionRecorded, c.GroupID, c.ID, actor, map[string]string{
		"membership_id": c.MembershipID.Hex(),
		"amount":        c.Amount.String(),
	}))
}

// ContributionConfirmed logs a contribution counted toward savings.
func (l *Logger) ContributionConfirmed(ctx context.Context, c models.Contribution, actor *primitive.ObjectID, ref *string) {
	details := map[string]string{
		"membership_id": c.MembershipID.Hex(),
		"amount":        c.Amount.String(),
	}
	if ref != nil {
		details["transaction_ref"] = *ref
	}
	l.Log(ctx, membershipEvent(audit.EventContributionConfirmed, c.GroupID, c.ID, actor, details))
}
