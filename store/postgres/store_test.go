package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/postgres"
	"github.com/xraph/bursar/store/storetest"
)

// BURSAR_TEST_POSTGRES_DSN points at a disposable database. Every subtest
// truncates the bursar tables.
const dsnEnv = "BURSAR_TEST_POSTGRES_DSN"

func TestStore(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		require.NoError(t, s.Migrate(ctx))
		_, err = pgdriver.Unwrap(s.DB()).NewRaw(`TRUNCATE bursar_tenants, bursar_plans, bursar_subscriptions,
			bursar_grants, bursar_invoices, bursar_payments`).Exec(ctx)
		require.NoError(t, err)
		return s
	})
}
