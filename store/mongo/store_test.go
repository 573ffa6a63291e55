package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/mongo"
	"github.com/xraph/bursar/store/storetest"
)

// BURSAR_TEST_MONGO_URI points at a disposable deployment. Each subtest gets
// its own database, dropped on cleanup.
const uriEnv = "BURSAR_TEST_MONGO_URI"

func TestStore(t *testing.T) {
	uri := os.Getenv(uriEnv)
	if uri == "" {
		t.Skipf("%s not set", uriEnv)
	}

	n := 0
	storetest.Run(t, func(t *testing.T) store.Store {
		n++
		ctx := context.Background()
		s, err := mongo.Open(ctx, uri, fmt.Sprintf("bursar_test_%d", n))
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = mongodriver.Unwrap(s.DB()).Database().Drop(context.Background())
			_ = s.Close()
		})

		require.NoError(t, s.Migrate(ctx))
		return s
	})
}
