package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/paylink/store"
	"github.com/xraph/paylink/store/mongo"
	"github.com/xraph/paylink/store/storetest"
)

// TestStoreSuite runs against the database named by PAYLINK_TEST_MONGO_URI
// and is skipped when it is unset. Settlement and withdrawal use
// transactions, so the server must be a replica set.
func TestStoreSuite(t *testing.T) {
	uri := os.Getenv("PAYLINK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PAYLINK_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		mdrv := mongodriver.New()
		if err := mdrv.Open(ctx, uri); err != nil {
			t.Fatalf("open driver failed: %v", err)
		}
		db, err := grove.Open(mdrv)
		if err != nil {
			t.Fatalf("open grove failed: %v", err)
		}
		s := mongo.New(db)
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		return s
	})
}
