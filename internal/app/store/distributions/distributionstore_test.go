package distributionstore_test

import (
	"errors"
	"testing"

	distributionstore "github.com/dalemusser/jamiifunds/internal/app/store/distributions"
	"github.com/dalemusser/jamiifunds/internal/app/system/indexes"
	"github.com/dalemusser/jamiifunds/internal/domain/models"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/jamiifunds/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestStore_OnePerGroupYear(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	store := distributionstore.New(db)

	groupID := primitive.NewObjectID()
	for _, year := range []int{2024, 2025} {
		if _, err := store.Create(ctx, models.ProfitDistribution{GroupID: groupID, Year: year, TotalProfit: money.MustParse("10.00")}); err != nil {
			t.Fatalf("Create(%d) failed: %v", year, err)
		}
	}
	_, err := store.Create(ctx, models.ProfitDistribution{GroupID: groupID, Year: 2025})
	if !errors.Is(err, distributionstore.ErrDuplicateYear) {
		t.Errorf("got %v, want ErrDuplicateYear", err)
	}

	list, err := store.ListByGroup(ctx, groupID)
	if err != nil || len(list) != 2 || list[0].Year != 2025 {
		t.Fatalf("ListByGroup = %+v, err=%v; want latest year first", list, err)
	}

	if err := store.Delete(ctx, list[0].ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, list[0].ID); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("second Delete: got %v, want ErrNoDocuments", err)
	}
	if _, err := store.GetByID(ctx, list[0].ID); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("GetByID after delete: got %v", err)
	}

	n, err := store.DeleteByGroup(ctx, groupID)
	if err != nil || n != 1 {
		t.Errorf("DeleteByGroup: n=%d err=%v", n, err)
	}
}
