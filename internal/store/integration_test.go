//go:build integration

// This file exercises RedisCatalog against a real Redis container rather
// than miniredis (PostgresCatalog has no test here), the way the teacher's pack reaches for
// testcontainers-go when a unit double isn't enough to trust a query. Run
// with `go test -tags=integration ./internal/store/...` against a Docker
// daemon.
package store

import (
	"context"
	"testing"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisCatalog_Integration_UpsertAndLookup(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	cat := NewRedisCatalog(client)

	entry := models.SubscriptionCatalogEntry{
		Merchant: "Netflix", Product: "Standard", AmountMinor: 1099, Currency: "GBP",
		Verified: true, Confidence: 1.0,
	}
	require.NoError(t, cat.Upsert(ctx, entry))

	hits, err := cat.Lookup(ctx, "netflix", 1099, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.True(t, hits[0].Verified)
}
