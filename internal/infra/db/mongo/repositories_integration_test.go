package mongo_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	mongostore "carchat/internal/infra/db/mongo"
	"carchat/internal/infra/storage/storetest"
)

// Needs a replica set: writable units run in transactions.
func TestRepositoriesAgainstMongo(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	database := "carchat_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	client, err := mongostore.New(uri, database)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.DB.Drop(ctx)
		_ = client.Close(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx))
	factory := mongostore.NewFactory(client.DB)
	require.NoError(t, factory.EnsureIndexes(ctx))

	storetest.RunRepositoryContract(t, factory)
}
