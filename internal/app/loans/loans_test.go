package loans_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/loans"
	"github.com/dalemusser/jamiifunds/internal/app/savings"
	"github.com/dalemusser/jamiifunds/internal/app/store"
	"github.com/dalemusser/jamiifunds/internal/app/store/audit"
	"github.com/dalemusser/jamiifunds/internal/app/system/auditlog"
	"github.com/dalemusser/jamiifunds/internal/domain/apperr"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/jamiifunds/internal/testutil/memstore"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type env struct {
	db     *memstore.DB
	chamas *chamas.Service
	loans  *loans.Service
	admin  models.Membership
	member models.Membership
}

func setup(t *testing.T, confirmedSavings string) env {
	t.Helper()
	return setupWith(t, confirmedSavings, func(s store.Set) store.Set { return s })
}

func setupWith(t *testing.T, confirmedSavings string, wrap func(store.Set) store.Set) env {
	t.Helper()
	ctx := context.Background()
	db := memstore.New()
	stores := wrap(db.Set())
	al := auditlog.New(db, zap.NewNop(), auditlog.Config{Loan: "db", Payment: "db", Membership: "db"})
	cs := chamas.New(stores, memstore.Runner{}, al, zap.NewNop(), "254")
	ls := loans.New(stores, cs.Directory(), savings.New(stores, 3), memstore.Runner{}, al, zap.NewNop(), loans.DefaultConfig())

	g, err := cs.CreateGroup(ctx, "Umoja", "", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	join := func(name, phone, id string, admin bool) models.Membership {
		p, err := cs.RegisterPerson(ctx, chamas.PersonInput{FullName: name, Phone: phone, NationalID: id}, nil)
		if err != nil {
			t.Fatalf("RegisterPerson: %v", err)
		}
		m, err := cs.Join(ctx, g.ID, p.ID, admin, nil)
		if err != nil {
			t.Fatalf("Join: %v", err)
		}
		return m
	}
	e := env{
		db:     db,
		chamas: cs,
		loans:  ls,
		admin:  join("Mwenyekiti", "0710000001", "ADM1", true),
		member: join("Mwanachama", "0710000002", "MEM1", false),
	}
	if confirmedSavings != "" {
		c, err := cs.RecordContribution(ctx, e.member.ID, money.MustParse(confirmedSavings), time.Time{}, nil)
		if err != nil {
			t.Fatalf("RecordContribution: %v", err)
		}
		if _, err := cs.ConfirmContribution(ctx, c.ID, e.admin.ID, ""); err != nil {
			t.Fatalf("ConfirmContribution: %v", err)
		}
	}
	return e
}

// approvedLoan seeds an approved loan with the given totals.
func (e env) approvedLoan(total, paid string) models.Loan {
	now := time.Now().UTC()
	return e.db.Loans().Put(models.Loan{
		MembershipID:   e.member.ID,
		GroupID:        e.member.GroupID,
		Principal:      money.MustParse("1000.00"),
		InterestRate:   money.MustParseRate("1.50"),
		TenureMonths:   2,
		TotalRepayable: money.MustParse(total),
		TotalPaid:      money.MustParse(paid),
		Status:         models.LoanApproved,
		ApprovedAt:     &now,
	})
}

func TestApply_InsufficientSavings(t *testing.T) {
	e := setup(t, "2999.99")
	_, err := e.loans.Apply(context.Background(), loans.Application{
		MembershipID: e.member.ID,
		Principal:    money.MustParse("1000.00"),
		TenureMonths: 2,
	})
	if !errors.Is(err, apperr.ErrInsufficientSavings) {
		t.Fatalf("expected ErrInsufficientSavings, got %v", err)
	}
}

func TestApply_CreatesPendingLoan(t *testing.T) {
	e := setup(t, "3000.00")
	loan, err := e.loans.Apply(context.Background(), loans.Application{
		MembershipID: e.member.ID,
		Principal:    money.MustParse("1000.00"),
		TenureMonths: 2,
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if loan.Status != models.LoanPending {
		t.Errorf("Status = %s, want pending", loan.Status)
	}
	if loan.ApprovedAt != nil {
		t.Error("ApprovedAt should be unset")
	}
	if loan.InterestRate.String() != "1.50" {
		t.Errorf("InterestRate = %s, want default 1.50", loan.InterestRate)
	}
	if loan.TotalRepayable.String() != "1022.56" {
		t.Errorf("TotalRepayable = %s, want 1022.56", loan.TotalRepayable)
	}
	if loan.GroupID != e.member.GroupID {
		t.Error("GroupID not copied from membership")
	}
}

func TestApply_Validation(t *testing.T) {
	e := setup(t, "100000.00")
	ctx := context.Background()
	zero := money.MustParseRate("0")

	tests := []struct {
		name string
		app  loans.Application
		want error
	}{
		{"zero tenure", loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("100.00")}, apperr.ErrInvalidTerms},
		{"zero principal", loans.Application{MembershipID: e.member.ID, Principal: money.Zero, TenureMonths: 3}, apperr.ErrInvalidTerms},
		{"tenure over max", loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("100.00"), TenureMonths: 61}, apperr.ErrInvalidTerms},
		{"unknown membership", loans.Application{MembershipID: primitive.NewObjectID(), Principal: money.MustParse("100.00"), TenureMonths: 3}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.loans.Apply(ctx, tt.app)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if errors.Is(err, apperr.ErrInvalidTerms) && !errors.Is(err, apperr.ErrValidation) {
				t.Error("ErrInvalidTerms should be a validation error")
			}
		})
	}

	loan, err := e.loans.Apply(ctx, loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("1200.00"), TenureMonths: 12, Rate: &zero})
	if err != nil {
		t.Fatalf("zero-rate Apply failed: %v", err)
	}
	if loan.TotalRepayable.String() != "1200.00" {
		t.Errorf("zero-rate TotalRepayable = %s", loan.TotalRepayable)
	}
}

func TestApply_InactiveMembership(t *testing.T) {
	e := setup(t, "3000.00")
	ctx := context.Background()
	if err := e.chamas.SetMembershipActive(ctx, e.member.ID, false, nil); err != nil {
		t.Fatalf("SetMembershipActive: %v", err)
	}
	_, err := e.loans.Apply(ctx, loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("100.00"), TenureMonths: 1})
	if !errors.Is(err, apperr.ErrNotMember) {
		t.Errorf("expected ErrNotMember, got %v", err)
	}
}

func TestApproveReject(t *testing.T) {
	e := setup(t, "3000.00")
	ctx := context.Background()
	app := loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("500.00"), TenureMonths: 1}

	loan, _ := e.loans.Apply(ctx, app)
	if _, err := e.loans.Approve(ctx, loan.ID, e.member.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-admin approve: expected ErrForbidden, got %v", err)
	}

	approved, err := e.loans.Approve(ctx, loan.ID, e.admin.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.LoanApproved || approved.ApprovedAt == nil {
		t.Errorf("unexpected loan %+v", approved)
	}
	if approved.ApprovedBy == nil || *approved.ApprovedBy != e.admin.ID {
		t.Error("ApprovedBy should be the admin")
	}
	if _, err := e.loans.Reject(ctx, loan.ID, e.admin.ID); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("reject approved: expected ErrIllegalTransition, got %v", err)
	}

	other, _ := e.loans.Apply(ctx, app)
	rejected, err := e.loans.Reject(ctx, other.ID, e.admin.ID)
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.LoanRejected || rejected.ApprovedAt != nil {
		t.Errorf("unexpected loan %+v", rejected)
	}
	if _, err := e.loans.Approve(ctx, other.ID, e.admin.ID); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("approve rejected: expected ErrIllegalTransition, got %v", err)
	}
	if n := len(e.db.AuditEvents(audit.EventLoanApproved)); n != 1 {
		t.Errorf("expected 1 approval audit event, got %d", n)
	}
}

func TestApprove_ConcurrentExactlyOnce(t *testing.T) {
	e := setup(t, "3000.00")
	ctx := context.Background()
	loan, err := e.loans.Apply(ctx, loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("1000.00"), TenureMonths: 2})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.loans.Approve(ctx, loan.ID, e.admin.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrIllegalTransition), errors.Is(err, apperr.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d approvals succeeded, want exactly 1", succeeded)
	}
	got, _ := e.db.Set().Loans.GetByID(ctx, loan.ID)
	if got.Status != models.LoanApproved {
		t.Errorf("final status = %s", got.Status)
	}
	if n := len(e.db.AuditEvents(audit.EventLoanApproved)); n != 1 {
		t.Errorf("expected 1 approval audit event, got %d", n)
	}
}

func TestPostRepayment_RequiresApproved(t *testing.T) {
	e := setup(t, "3000.00")
	ctx := context.Background()
	loan, _ := e.loans.Apply(ctx, loans.Application{MembershipID: e.member.ID, Principal: money.MustParse("100.00"), TenureMonths: 1})

	if _, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("10.00"), nil); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("pending: expected ErrIllegalTransition, got %v", err)
	}
	e.loans.Reject(ctx, loan.ID, e.admin.ID)
	if _, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("10.00"), nil); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("rejected: expected ErrIllegalTransition, got %v", err)
	}
	if n := len(e.db.AuditEvents(audit.EventRepaymentRefused)); n != 2 {
		t.Errorf("expected 2 refused audit events, got %d", n)
	}
}

func TestPostRepayment_InvalidAmount(t *testing.T) {
	e := setup(t, "")
	loan := e.approvedLoan("1022.56", "0.00")
	for _, amt := range []string{"0.00", "-5.00"} {
		if _, err := e.loans.PostRepayment(context.Background(), loan.ID, money.MustParse(amt), nil); !errors.Is(err, apperr.ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}

func TestPostRepayment_OverpaymentLeavesStateUnchanged(t *testing.T) {
	e := setup(t, "")
	ctx := context.Background()
	loan := e.approvedLoan("1022.56", "722.56")

	_, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("300.01"), nil)
	if !errors.Is(err, apperr.ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	after, _ := e.db.Set().Loans.GetByID(ctx, loan.ID)
	if after.TotalPaid.String() != "722.56" || after.Version != loan.Version || after.Status != models.LoanApproved {
		t.Errorf("loan changed: %+v", after)
	}
	reps, _ := e.db.Set().Repayments.ListByLoan(ctx, loan.ID)
	if len(reps) != 0 {
		t.Errorf("expected no repayment rows, got %d", len(reps))
	}
}

func TestPostRepayment_FinalPaymentRepaysLoan(t *testing.T) {
	e := setup(t, "")
	ctx := context.Background()
	loan := e.approvedLoan("1022.56", "722.56")

	posting, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("300.00"), nil)
	if err != nil {
		t.Fatalf("PostRepayment failed: %v", err)
	}
	if posting.Loan.Status != models.LoanRepaid {
		t.Errorf("Status = %s, want repaid", posting.Loan.Status)
	}
	if posting.BalanceDue.String() != "0.00" {
		t.Errorf("BalanceDue = %s, want 0.00", posting.BalanceDue)
	}
	stored, _ := e.db.Set().Loans.GetByID(ctx, loan.ID)
	if stored.Status != models.LoanRepaid || stored.RepaidAt == nil {
		t.Errorf("stored loan %+v", stored)
	}
	if _, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("1.00"), nil); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("repay repaid loan: expected ErrIllegalTransition, got %v", err)
	}
}

func TestPostRepayment_BalanceDecreasesByAmount(t *testing.T) {
	e := setup(t, "")
	ctx := context.Background()
	loan := e.approvedLoan("1022.56", "0.00")

	balance := money.MustParse("1022.56")
	for _, amt := range []string{"511.28", "200.00", "11.28"} {
		a := money.MustParse(amt)
		p, err := e.loans.PostRepayment(ctx, loan.ID, a, nil)
		if err != nil {
			t.Fatalf("PostRepayment(%s) failed: %v", amt, err)
		}
		want := balance.Sub(a)
		if !p.BalanceDue.Equal(want) {
			t.Errorf("after %s: balance %s, want %s", amt, p.BalanceDue, want)
		}
		balance = want
	}

	v, err := e.loans.View(ctx, loan.ID)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if v.TotalPaid.String() != "722.56" || v.BalanceDue.String() != "300.00" || len(v.Repayments) != 3 {
		t.Errorf("View = paid %s balance %s rows %d", v.TotalPaid, v.BalanceDue, len(v.Repayments))
	}
	if v.EMI.String() != "511.28" {
		t.Errorf("EMI = %s, want 511.28", v.EMI)
	}
}

func TestPostRepayment_ConcurrentNeverOverpays(t *testing.T) {
	e := setup(t, "")
	ctx := context.Background()
	loan := e.approvedLoan("1022.56", "0.00")

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.loans.PostRepayment(ctx, loan.ID, money.MustParse("600.00"), nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, apperr.ErrOverpayment), errors.Is(err, apperr.ErrConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d repayments succeeded, want 1", succeeded)
	}
	stored, _ := e.db.Set().Loans.GetByID(ctx, loan.ID)
	if stored.TotalPaid.String() != "600.00" {
		t.Errorf("TotalPaid = %s, want 600.00", stored.TotalPaid)
	}
	if reps, _ := e.db.Set().Repayments.ListByLoan(ctx, loan.ID); len(reps) != 1 {
		t.Errorf("%d repayment rows, want 1", len(reps))
	}
}

// flakyLoans fails the first running-total update.
type flakyLoans struct {
	store.Loans
	failed bool
}

var errWriteFailed = errors.New("write failed")

func (l *flakyLoans) ApplyRepayment(ctx context.Context, id primitive.ObjectID, version int64, amount money.Amount, repaid bool, at time.Time) (bool, error) {
	if !l.failed {
		l.failed = true
		return false, errWriteFailed
	}
	return l.Loans.ApplyRepayment(ctx, id, version, amount, repaid, at)
}

func TestPostRepayment_FailedLoanUpdateKeepsNoRow(t *testing.T) {
	e := setupWith(t, "", func(s store.Set) store.Set {
		s.Loans = &flakyLoans{Loans: s.Loans}
		return s
	})
	ctx := context.Background()
	loan := e.approvedLoan("1022.56", "0.00")
	stores := e.db.Set()

	if _, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("100.00"), nil); !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected the write error, got %v", err)
	}
	if reps, _ := stores.Repayments.ListByLoan(ctx, loan.ID); len(reps) != 0 {
		t.Fatalf("failed posting left %d repayment rows", len(reps))
	}
	if got, _ := stores.Loans.GetByID(ctx, loan.ID); !got.TotalPaid.IsZero() {
		t.Fatalf("TotalPaid = %s, want 0.00", got.TotalPaid)
	}

	if _, err := e.loans.PostRepayment(ctx, loan.ID, money.MustParse("100.00"), nil); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	sum, _ := stores.Repayments.SumByLoan(ctx, loan.ID)
	got, _ := stores.Loans.GetByID(ctx, loan.ID)
	if sum.String() != "100.00" || got.TotalPaid.String() != "100.00" {
		t.Errorf("rows sum %s, total_paid %s, want 100.00 each", sum, got.TotalPaid)
	}
}

func TestMarkDefaultedAndRepaid(t *testing.T) {
	e := setup(t, "")
	ctx := context.Background()

	a := e.approvedLoan("1022.56", "100.00")
	got, err := e.loans.MarkDefaulted(ctx, a.ID, e.admin.ID)
	if err != nil {
		t.Fatalf("MarkDefaulted failed: %v", err)
	}
	if got.Status != models.LoanDefaulted || got.DefaultedAt == nil {
		t.Errorf("unexpected loan %+v", got)
	}
	if _, err := e.loans.MarkRepaid(ctx, a.ID, e.admin.ID); !errors.Is(err, apperr.ErrIllegalTransition) {
		t.Errorf("repaid after default: expected ErrIllegalTransition, got %v", err)
	}

	b := e.approvedLoan("1022.56", "1000.00")
	if _, err := e.loans.MarkRepaid(ctx, b.ID, e.member.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-admin MarkRepaid: expected ErrForbidden, got %v", err)
	}
	got, err = e.loans.MarkRepaid(ctx, b.ID, e.admin.ID)
	if err != nil || got.Status != models.LoanRepaid {
		t.Errorf("MarkRepaid: status=%s err=%v", got.Status, err)
	}
}

func TestSchedule(t *testing.T) {
	e := setup(t, "")
	loan := e.approvedLoan("1022.56", "0.00")
	rows, err := e.loans.Schedule(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1].Remaining.String() != "0.00" {
		t.Errorf("last remaining = %s", rows[1].Remaining)
	}
	if _, err := e.loans.Schedule(context.Background(), primitive.NewObjectID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing loan: expected ErrNotFound, got %v", err)
	}
}

func TestQuote(t *testing.T) {
	e := setup(t, "")

	q, err := e.loans.Quote(money.MustParse("1000.00"), 2, nil)
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	if q.EMI.String() != "511.28" || q.TotalRepayable.String() != "1022.56" {
		t.Errorf("quote = %+v", q)
	}

	limit := loans.DefaultConfig().MaxTenureMonths
	if _, err := e.loans.Quote(money.MustParse("1000.00"), limit, nil); err != nil {
		t.Errorf("tenure at the limit: %v", err)
	}
	if _, err := e.loans.Quote(money.MustParse("1000.00"), limit+1, nil); !errors.Is(err, apperr.ErrInvalidTerms) {
		t.Errorf("tenure over the limit: expected ErrInvalidTerms, got %v", err)
	}
	if _, err := e.loans.Quote(money.MustParse("1000.00"), 1<<30, nil); !errors.Is(err, apperr.ErrInvalidTerms) {
		t.Errorf("huge tenure: expected ErrInvalidTerms, got %v", err)
	}
}
