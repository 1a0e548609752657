//go:build integration

package identity_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"credd/cmd/identity"
	"credd/cmd/internal/autherr"
	"credd/cmd/security/password"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("credd"),
		postgres.WithUsername("credd"),
		postgres.WithPassword("credd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPostgresStore_Integration(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	m, err := identity.NewMigrator(dsn)
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up())

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	st, err := identity.NewPostgresStore(pool)
	require.NoError(t, err)
	require.NoError(t, st.Ping(ctx))

	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	creds := identity.NewCredentials(st, password.NewPool(cfg, 4), cfg, nil)

	rec, err := creds.Register(ctx, "Alice@Example.com", "Sup3rSecret!")
	require.NoError(t, err)

	got, err := st.GetByIdentity(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.SecretHash, got.SecretHash)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)

	name := "Alice"
	updated, err := creds.UpdateProfile(ctx, got, identity.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, rec.SecretHash, updated.SecretHash)
	require.NotNil(t, updated.DisplayName)

	changed, err := creds.ChangeSecret(ctx, updated, "Sup3rSecret!", "N3w-Secret-Value")
	require.NoError(t, err)
	assert.NotEqual(t, rec.SecretHash, changed.SecretHash)
	require.NotNil(t, changed.DisplayName, "secret change keeps profile fields")

	_, err = st.GetByIdentity(ctx, "nobody")
	autherr.AssertKind(t, err, autherr.ErrNotFound)

	// Unique index is the backstop when concurrent registrations race past
	// the advisory pre-check.
	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		dups atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := creds.Register(ctx, "race@example.com", "Sup3rSecret!")
			switch {
			case err == nil:
				ok.Add(1)
			case autherr.Is(err, autherr.ErrDuplicateIdentity):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(5), dups.Load())

	require.NoError(t, m.Down())
}
