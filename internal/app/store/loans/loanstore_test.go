package loanstore_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	loanstore "github.com/dalemusser/jamiifunds/internal/app/store/loans"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/jamiifunds/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newLoan(groupID, membershipID primitive.ObjectID) models.Loan {
	return models.Loan{
		MembershipID:   membershipID,
		GroupID:        groupID,
		Principal:      money.MustParse("1000.00"),
		InterestRate:   money.MustParseRate("1.50"),
		TenureMonths:   2,
		TotalRepayable: money.MustParse("1022.56"),
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := loanstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l, err := store.Create(ctx, newLoan(primitive.NewObjectID(), primitive.NewObjectID()))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	got, err := store.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != models.LoanPending || got.Version != 1 {
		t.Errorf("status=%s version=%d, want pending/1", got.Status, got.Version)
	}
	if got.InterestRate.String() != "1.50" || got.TotalRepayable.String() != "1022.56" {
		t.Errorf("rate=%s total=%s", got.InterestRate, got.TotalRepayable)
	}
}

func TestStore_Transition_ConcurrentApproveExactlyOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := loanstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l, _ := store.Create(ctx, newLoan(primitive.NewObjectID(), primitive.NewObjectID()))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Transition(ctx, l.ID, models.LoanPending, models.LoanApproved, time.Now().UTC(), nil)
			if err != nil {
				t.Errorf("Transition failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one approval, got %d", wins)
	}
	got, _ := store.GetByID(ctx, l.ID)
	if got.Status != models.LoanApproved || got.ApprovedAt == nil || got.Version != 2 {
		t.Errorf("status=%s approvedAt=%v version=%d", got.Status, got.ApprovedAt, got.Version)
	}
}

func TestStore_ApplyRepayment_VersionGuard(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := loanstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	l, _ := store.Create(ctx, newLoan(primitive.NewObjectID(), primitive.NewObjectID()))
	if ok, _ := store.Transition(ctx, l.ID, models.LoanPending, models.LoanApproved, time.Now().UTC(), nil); !ok {
		t.Fatal("approve failed")
	}
	approved, _ := store.GetByID(ctx, l.ID)

	ok, err := store.ApplyRepayment(ctx, l.ID, approved.Version, money.MustParse("722.56"), false, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("ApplyRepayment: ok=%v err=%v", ok, err)
	}

	// Same version again loses the race.
	ok, err = store.ApplyRepayment(ctx, l.ID, approved.Version, money.MustParse("300.00"), true, time.Now().UTC())
	if err != nil {
		t.Fatalf("stale ApplyRepayment failed: %v", err)
	}
	if ok {
		t.Fatal("stale version must not apply")
	}

	cur, _ := store.GetByID(ctx, l.ID)
	if cur.BalanceDue().String() != "300.00" {
		t.Fatalf("BalanceDue: got %s, want 300.00", cur.BalanceDue())
	}

	ok, err = store.ApplyRepayment(ctx, l.ID, cur.Version, money.MustParse("300.00"), true, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("final ApplyRepayment: ok=%v err=%v", ok, err)
	}
	done, _ := store.GetByID(ctx, l.ID)
	if done.Status != models.LoanRepaid || !done.BalanceDue().IsZero() || done.RepaidAt == nil {
		t.Errorf("status=%s balance=%s repaidAt=%v", done.Status, done.BalanceDue(), done.RepaidAt)
	}
}

func TestStore_SumOutstandingPrincipalByGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := loanstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	a, _ := store.Create(ctx, newLoan(groupID, primitive.NewObjectID()))
	store.Create(ctx, newLoan(groupID, primitive.NewObjectID()))
	c, _ := store.Create(ctx, newLoan(groupID, primitive.NewObjectID()))
	store.Transition(ctx, a.ID, models.LoanPending, models.LoanApproved, time.Now().UTC(), nil)
	store.Transition(ctx, c.ID, models.LoanPending, models.LoanRejected, time.Now().UTC(), nil)

	total, err := store.SumOutstandingPrincipalByGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("SumOutstandingPrincipalByGroup failed: %v", err)
	}
	if total.String() != "2000.00" {
		t.Errorf("got %s, want 2000.00", total)
	}
}

func TestStore_ListApproved_EarliestApprovalFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := loanstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var approved []primitive.ObjectID
	for i, offset := range []time.Duration{48 * time.Hour, time.Hour} {
		l, err := store.Create(ctx, newLoan(groupID, primitive.NewObjectID()))
		if err != nil {
			t.Fatalf("Create %d failed: %v", i, err)
		}
		if ok, err := store.Transition(ctx, l.ID, models.LoanPending, models.LoanApproved, base.Add(offset), nil); err != nil || !ok {
			t.Fatalf("Transition %d: ok=%v err=%v", i, ok, err)
		}
		approved = append(approved, l.ID)
	}
	if _, err := store.Create(ctx, newLoan(groupID, primitive.NewObjectID())); err != nil {
		t.Fatalf("Create pending failed: %v", err)
	}

	got, err := store.ListApproved(ctx)
	if err != nil {
		t.Fatalf("ListApproved failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != approved[1] || got[1].ID != approved[0] {
		t.Errorf("ListApproved returned %d loans in the wrong order", len(got))
	}
}
