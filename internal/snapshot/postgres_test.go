package snapshot

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wonny/eodsnap/pkg/config"
	"github.com/wonny/eodsnap/pkg/database"
)

func TestPostgresStore(t *testing.T) {
	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	const symbol = "ZZSNAPTEST"
	cleanup := func() {
		_, _ = db.Pool.Exec(ctx, `DELETE FROM snapshot.quote_snapshots WHERE symbol = $1`, symbol)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM snapshot.option_chain_snapshots WHERE symbol = $1`, symbol)
	}
	cleanup()
	defer cleanup()

	storeSemantics(t, NewPostgresStore(db.Pool), symbol)
}
