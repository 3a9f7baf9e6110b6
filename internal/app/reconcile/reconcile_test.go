package reconcile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/loans"
	"github.com/dalemusser/jamiifunds/internal/app/reconcile"
	"github.com/dalemusser/jamiifunds/internal/app/savings"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/store/audit"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/jamiifunds/internal/testutil/memstore"
	"go.uber.org/zap"
)

type env struct {
	db     *memstore.DB
	stores store.Set
	chamas *chamas.Service
	engine *reconcile.Engine
	member models.Membership
}

const payerPhone = "0712345678"

func setup(t *testing.T) env {
	t.Helper()
	return setupWith(t, func(s store.Set) store.Set { return s })
}

// setupWith lets a test wrap the in-memory stores before the services are
// built on them.
func setupWith(t *testing.T, wrap func(store.Set) store.Set) env {
	t.Helper()
	ctx := context.Background()
	db := memstore.New()
	stores := wrap(db.Set())
	al := auditlog.New(db, zap.NewNop(), auditlog.Config{Loan: "db", Payment: "db", Membership: "db"})
	cs := chamas.New(stores, memstore.Runner{}, al, zap.NewNop(), "254")
	ls := loans.New(stores, cs.Directory(), savings.New(stores, 3), memstore.Runner{}, al, zap.NewNop(), loans.DefaultConfig())
	eng := reconcile.New(stores, cs.Directory(), ls, memstore.Runner{}, al, zap.NewNop(), "254")

	g, _ := cs.CreateGroup(ctx, "Umoja", "", nil)
	p, err := cs.RegisterPerson(ctx, chamas.PersonInput{FullName: "Chebet", Phone: payerPhone, NationalID: "C100"}, nil)
	if err != nil {
		t.Fatalf("RegisterPerson: %v", err)
	}
	m, err := cs.Join(ctx, g.ID, p.ID, false, nil)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return env{db: db, stores: stores, chamas: cs, engine: eng, member: m}
}

func amt(s string) *money.Amount {
	a := money.MustParse(s)
	return &a
}

func success(checkoutID, amount, receipt string) reconcile.Callback {
	return reconcile.Callback{
		CheckoutID: checkoutID,
		ResultCode: 0,
		ResultDesc: "The service request is processed successfully.",
		Amount:     amt(amount),
		Receipt:    receipt,
		Phone:      "254712345678",
		RawPayload: `{"Body":{}}`,
	}
}

func TestStatusForResultCode(t *testing.T) {
	tests := []struct {
		code int
		want models.PaymentStatus
	}{
		{0, models.PaymentCompleted},
		{1032, models.PaymentCancelled},
		{1037, models.PaymentTimeout},
		{1, models.PaymentFailed},
		{2001, models.PaymentFailed},
	}
	for _, tt := range tests {
		if got := reconcile.StatusForResultCode(tt.code); got != tt.want {
			t.Errorf("StatusForResultCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestProcess_ConfirmsOldestMatchingContribution(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	older, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now().Add(-2*time.Hour), nil)
	newer, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now().Add(-time.Hour), nil)
	other, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("250.00"), time.Now().Add(-3*time.Hour), nil)

	out, err := e.engine.Process(ctx, success("ws_CO_1", "500.00", "qkj1abc"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Match != models.MatchContribution || out.ContributionID == nil || *out.ContributionID != older.ID {
		t.Fatalf("unexpected outcome %+v", out)
	}

	got, _ := e.stores.Contributions.GetByID(ctx, older.ID)
	if !got.Confirmed || got.TransactionRef == nil || *got.TransactionRef != "QKJ1ABC" {
		t.Errorf("older contribution: %+v", got)
	}
	if c, _ := e.stores.Contributions.GetByID(ctx, newer.ID); c.Confirmed {
		t.Error("newer 500.00 contribution should stay unconfirmed")
	}
	if c, _ := e.stores.Contributions.GetByID(ctx, other.ID); c.Confirmed {
		t.Error("250.00 contribution should stay unconfirmed")
	}

	ev, err := e.stores.PaymentEvents.GetByCheckoutID(ctx, "ws_CO_1")
	if err != nil {
		t.Fatalf("event not recorded: %v", err)
	}
	if ev.Status != models.PaymentCompleted || ev.Receipt == nil || *ev.Receipt != "QKJ1ABC" || ev.RawPayload == "" {
		t.Errorf("event = %+v", ev)
	}
	if ev.LinkedContributionID == nil || *ev.LinkedContributionID != older.ID {
		t.Error("event should link the confirmed contribution")
	}
}

func TestProcess_IsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now().Add(-2*time.Hour), nil)
	e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now().Add(-time.Hour), nil)

	cb := success("ws_CO_2", "500.00", "R2")
	first, err := e.engine.Process(ctx, cb)
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := e.engine.Process(ctx, cb)
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if !second.Duplicate {
		t.Error("second delivery should be reported as duplicate")
	}
	if second.EventID != first.EventID || second.Match != first.Match {
		t.Errorf("duplicate outcome %+v differs from first %+v", second, first)
	}
	if *second.ContributionID != *first.ContributionID {
		t.Error("duplicate should report the original contribution")
	}

	saved, _ := e.stores.Contributions.SumConfirmed(ctx, e.member.ID)
	if saved.String() != "500.00" {
		t.Errorf("confirmed savings = %s, want 500.00", saved)
	}
	if n := len(e.db.AuditEvents(audit.EventPaymentDuplicate)); n != 1 {
		t.Errorf("expected 1 duplicate audit event, got %d", n)
	}
}

func TestProcess_NoExactAmountLeavesUnmatched(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("499.99"), time.Time{}, nil)

	out, err := e.engine.Process(ctx, success("ws_CO_3", "500.00", "R3"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Match != models.MatchNone {
		t.Errorf("Match = %s, want unmatched", out.Match)
	}
	rows, _ := e.stores.Contributions.ListByMembership(ctx, e.member.ID)
	if len(rows) != 1 || rows[0].Confirmed {
		t.Errorf("contributions changed: %+v", rows)
	}
	unmatched, _ := e.stores.PaymentEvents.ListUnmatched(ctx, 10)
	if len(unmatched) != 1 {
		t.Errorf("ListUnmatched returned %d events", len(unmatched))
	}
}

func TestProcess_UnknownPayerIsNonFatal(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	cb := success("ws_CO_4", "100.00", "R4")
	cb.Phone = "254799999999"
	out, err := e.engine.Process(ctx, cb)
	if !errors.Is(err, apperr.ErrUnknownPayer) || !apperr.IsNonFatal(err) {
		t.Fatalf("expected non-fatal ErrUnknownPayer, got %v", err)
	}
	if out.Match != models.MatchUnknownPayer || out.Status != models.PaymentCompleted {
		t.Errorf("unexpected outcome %+v", out)
	}
	ev, _ := e.stores.PaymentEvents.GetByCheckoutID(ctx, "ws_CO_4")
	if ev.Status != models.PaymentCompleted || ev.Outcome != models.MatchUnknownPayer {
		t.Errorf("event = %+v", ev)
	}

	again, err := e.engine.Process(ctx, cb)
	if err != nil || !again.Duplicate {
		t.Errorf("redelivery: outcome %+v err %v", again, err)
	}
}

func TestProcess_FailureChangesNothing(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Time{}, nil)

	checkout := "ws_CO_5"
	ev, err := e.stores.PaymentEvents.Create(ctx, models.PaymentEvent{
		Reference:      "JF00000000AA",
		Phone:          "254712345678",
		Amount:         money.MustParse("500.00"),
		Type:           models.PaymentContribution,
		MembershipID:   &e.member.ID,
		GroupID:        &e.member.GroupID,
		ContributionID: &c.ID,
	})
	if err != nil {
		t.Fatalf("Create event: %v", err)
	}
	e.stores.PaymentEvents.MarkInitiated(ctx, ev.ID, checkout, "mr", time.Now())

	out, err := e.engine.Process(ctx, reconcile.Callback{CheckoutID: checkout, ResultCode: 1032, ResultDesc: "Request cancelled by user"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Status != models.PaymentCancelled || out.Match != models.MatchFailed {
		t.Errorf("unexpected outcome %+v", out)
	}
	if got, _ := e.stores.Contributions.GetByID(ctx, c.ID); got.Confirmed {
		t.Error("contribution must not be confirmed by a cancelled payment")
	}

	// A later success for the same checkout is ignored.
	late, err := e.engine.Process(ctx, success(checkout, "500.00", "LATE"))
	if err != nil || !late.Duplicate || late.Status != models.PaymentCancelled {
		t.Errorf("late success: outcome %+v err %v", late, err)
	}
	if got, _ := e.stores.Contributions.GetByID(ctx, c.ID); got.Confirmed {
		t.Error("contribution must stay unconfirmed")
	}
}

func TestProcess_PrefersHintedContribution(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	older, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now().Add(-time.Hour), nil)
	hinted, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Now(), nil)

	ev, _ := e.stores.PaymentEvents.Create(ctx, models.PaymentEvent{
		Reference:      "JF00000000BB",
		Phone:          "254712345678",
		Amount:         money.MustParse("500.00"),
		Type:           models.PaymentContribution,
		GroupID:        &e.member.GroupID,
		ContributionID: &hinted.ID,
	})
	e.stores.PaymentEvents.MarkInitiated(ctx, ev.ID, "ws_CO_6", "mr", time.Now())

	out, err := e.engine.Process(ctx, success("ws_CO_6", "500.00", "R6"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.ContributionID == nil || *out.ContributionID != hinted.ID {
		t.Errorf("expected hinted contribution, got %+v", out)
	}
	if got, _ := e.stores.Contributions.GetByID(ctx, older.ID); got.Confirmed {
		t.Error("older contribution should be untouched")
	}
}

func TestProcess_RepaymentRepaysLoan(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	loan := e.db.Loans().Put(models.Loan{
		MembershipID:   e.member.ID,
		GroupID:        e.member.GroupID,
		Principal:      money.MustParse("1000.00"),
		InterestRate:   money.MustParseRate("1.50"),
		TenureMonths:   2,
		TotalRepayable: money.MustParse("1022.56"),
		TotalPaid:      money.MustParse("722.56"),
		Status:         models.LoanApproved,
		ApprovedAt:     &now,
	})

	ev, _ := e.stores.PaymentEvents.Create(ctx, models.PaymentEvent{
		Reference:    "JF00000000CC",
		Phone:        "254712345678",
		Amount:       money.MustParse("300.00"),
		Type:         models.PaymentLoanRepayment,
		MembershipID: &e.member.ID,
		GroupID:      &e.member.GroupID,
		LoanID:       &loan.ID,
	})
	e.stores.PaymentEvents.MarkInitiated(ctx, ev.ID, "ws_CO_7", "mr", time.Now())

	out, err := e.engine.Process(ctx, success("ws_CO_7", "300.00", "R7"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Match != models.MatchRepayment || out.RepaymentID == nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	got, _ := e.stores.Loans.GetByID(ctx, loan.ID)
	if got.Status != models.LoanRepaid || got.BalanceDue().String() != "0.00" {
		t.Errorf("loan = status %s balance %s", got.Status, got.BalanceDue())
	}
	reps, _ := e.stores.Repayments.ListByLoan(ctx, loan.ID)
	if len(reps) != 1 || reps[0].TransactionRef == nil || *reps[0].TransactionRef != "R7" {
		t.Errorf("repayments = %+v", reps)
	}

	// Same checkout again: no second repayment.
	if _, err := e.engine.Process(ctx, success("ws_CO_7", "300.00", "R7")); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	reps, _ = e.stores.Repayments.ListByLoan(ctx, loan.ID)
	if len(reps) != 1 {
		t.Errorf("redelivery created %d repayments", len(reps))
	}
}

func TestProcess_RepaymentLargerThanBalanceIsUnmatched(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	loan := e.db.Loans().Put(models.Loan{
		MembershipID:   e.member.ID,
		GroupID:        e.member.GroupID,
		TotalRepayable: money.MustParse("100.00"),
		Status:         models.LoanApproved,
		ApprovedAt:     &now,
	})
	ev, _ := e.stores.PaymentEvents.Create(ctx, models.PaymentEvent{
		Reference: "JF00000000DD",
		Phone:     "254712345678",
		Amount:    money.MustParse("150.00"),
		Type:      models.PaymentLoanRepayment,
		LoanID:    &loan.ID,
	})
	e.stores.PaymentEvents.MarkInitiated(ctx, ev.ID, "ws_CO_8", "mr", time.Now())

	out, err := e.engine.Process(ctx, success("ws_CO_8", "150.00", "R8"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Match != models.MatchNone {
		t.Errorf("Match = %s, want unmatched", out.Match)
	}
	got, _ := e.stores.Loans.GetByID(ctx, loan.ID)
	if !got.TotalPaid.IsZero() {
		t.Errorf("TotalPaid = %s", got.TotalPaid)
	}
}

func TestProcess_LateCallbackAfterTimeout(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Time{}, nil)
	ev, _ := e.stores.PaymentEvents.Create(ctx, models.PaymentEvent{
		Reference: "JF00000000EE",
		Phone:     "254712345678",
		Amount:    money.MustParse("500.00"),
		Type:      models.PaymentContribution,
		CreatedAt: time.Now().Add(-time.Hour),
	})
	e.stores.PaymentEvents.MarkInitiated(ctx, ev.ID, "ws_CO_9", "mr", time.Now())
	if n, _ := e.stores.PaymentEvents.ExpireStale(ctx, time.Now().Add(-15*time.Minute), time.Now()); n != 1 {
		t.Fatalf("expected one expired event, got %d", n)
	}

	out, err := e.engine.Process(ctx, success("ws_CO_9", "500.00", "R9"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !out.Duplicate || out.Status != models.PaymentTimeout || out.Match != models.MatchLateSuccess {
		t.Errorf("unexpected outcome %+v", out)
	}
	if got, _ := e.stores.Contributions.GetByID(ctx, c.ID); got.Confirmed {
		t.Error("timed-out payment must not confirm a contribution")
	}

	got, _ := e.stores.PaymentEvents.GetByID(ctx, ev.ID)
	if got.Status != models.PaymentTimeout || got.Receipt == nil || *got.Receipt != "R9" {
		t.Errorf("late success not recorded: %+v", got)
	}
	unmatched, _ := e.stores.PaymentEvents.ListUnmatched(ctx, 10)
	if len(unmatched) != 1 || unmatched[0].ID != ev.ID {
		t.Errorf("ListUnmatched = %+v, want the timed-out event", unmatched)
	}

	again, err := e.engine.Process(ctx, success("ws_CO_9", "500.00", "R9"))
	if err != nil || !again.Duplicate || again.Match != models.MatchLateSuccess {
		t.Errorf("redelivery: outcome %+v err %v", again, err)
	}
	if n := len(e.db.AuditEvents(audit.EventPaymentUnmatched)); n != 1 {
		t.Errorf("recorded %d unmatched audit events, want 1", n)
	}
}

// flakyPersons fails the first phone lookup.
type flakyPersons struct {
	store.Persons
	failed bool
}

var errConnReset = errors.New("connection reset")

func (p *flakyPersons) GetByPhone(ctx context.Context, phone string) (models.Person, error) {
	if !p.failed {
		p.failed = true
		return models.Person{}, errConnReset
	}
	return p.Persons.GetByPhone(ctx, phone)
}

func TestProcess_ErrorAfterFinalizeIsListedForReview(t *testing.T) {
	e := setupWith(t, func(s store.Set) store.Set {
		s.Persons = &flakyPersons{Persons: s.Persons}
		return s
	})
	ctx := context.Background()
	c, _ := e.chamas.RecordContribution(ctx, e.member.ID, money.MustParse("500.00"), time.Time{}, nil)

	cb := success("ws_CO_10", "500.00", "R10")
	if _, err := e.engine.Process(ctx, cb); !errors.Is(err, errConnReset) {
		t.Fatalf("expected the lookup error, got %v", err)
	}

	ev, _ := e.stores.PaymentEvents.GetByCheckoutID(ctx, "ws_CO_10")
	if ev.Status != models.PaymentCompleted || ev.Outcome != models.MatchProcessingFailed {
		t.Fatalf("event = status %s outcome %q", ev.Status, ev.Outcome)
	}
	unmatched, _ := e.stores.PaymentEvents.ListUnmatched(ctx, 10)
	if len(unmatched) != 1 || unmatched[0].ID != ev.ID {
		t.Errorf("ListUnmatched = %+v, want the failed event", unmatched)
	}

	again, err := e.engine.Process(ctx, cb)
	if err != nil || !again.Duplicate || again.Match != models.MatchProcessingFailed {
		t.Errorf("redelivery: outcome %+v err %v", again, err)
	}
	if got, _ := e.stores.Contributions.GetByID(ctx, c.ID); got.Confirmed {
		t.Error("contribution must stay unconfirmed until reviewed")
	}
}

func TestProcess_RequiresCheckoutID(t *testing.T) {
	e := setup(t)
	_, err := e.engine.Process(context.Background(), reconcile.Callback{ResultCode: 0})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
