package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shopqueue/internal/domain"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/memory"
	"github.com/vladislavdragonenkov/shopqueue/internal/storage/postgres"
)

type fakeStore struct {
	*memory.Store

	migrations []postgres.MigrationState
	upSteps    []int
	downSteps  []int
	closed     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		Store: memory.NewStore(),
		migrations: []postgres.MigrationState{
			{Version: 1, Name: "init"},
		},
	}
}

func (f *fakeStore) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	for i := range f.migrations {
		f.migrations[i].Applied = true
	}
	return nil
}

func (f *fakeStore) MigrateDown(_ context.Context, steps int) error {
	f.downSteps = append(f.downSteps, steps)
	for i := range f.migrations {
		f.migrations[i].Applied = false
	}
	return nil
}

func (f *fakeStore) Migrations(context.Context) ([]postgres.MigrationState, error) {
	return append([]postgres.MigrationState(nil), f.migrations...), nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func execute(t *testing.T, store *fakeStore, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand(func(context.Context, string) (cliStore, error) {
		return store, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand(openPostgres)
	for _, name := range []string{"up", "down", "status", "seed"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
}

func TestMissingDSN(t *testing.T) {
	t.Setenv(envPostgresDSN, "")

	_, err := execute(t, newFakeStore(), "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), envPostgresDSN)
}

func TestUpDownStatus(t *testing.T) {
	store := newFakeStore()

	out, err := execute(t, store, "up", "--dsn=postgres://fake")
	require.NoError(t, err)
	assert.Contains(t, out, "migrate up ok: version=1 applied=1")
	assert.Equal(t, []int{0}, store.upSteps)
	assert.True(t, store.closed)

	out, err = execute(t, store, "status", "--dsn=postgres://fake")
	require.NoError(t, err)
	assert.Contains(t, out, "0001  applied  init")

	out, err = execute(t, store, "down", "--dsn=postgres://fake")
	require.NoError(t, err)
	assert.Contains(t, out, "migrate down ok: version=0 applied=0")
	assert.Equal(t, []int{1}, store.downSteps)
}

func TestDSNFromEnv(t *testing.T) {
	t.Setenv(envPostgresDSN, "postgres://from-env")

	var gotDSN string
	cmd := newRootCommand(func(_ context.Context, dsn string) (cliStore, error) {
		gotDSN = dsn
		return newFakeStore(), nil
	})
	cmd.SetArgs([]string{"status"})
	cmd.SetOut(&bytes.Buffer{})

	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.Equal(t, "postgres://from-env", gotDSN)
}

func TestOpenError(t *testing.T) {
	cmd := newRootCommand(func(context.Context, string) (cliStore, error) {
		return nil, errors.New("connection refused")
	})
	cmd.SetArgs([]string{"up", "--dsn=postgres://fake"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSeedDemo(t *testing.T) {
	store := newFakeStore()

	out, err := execute(t, store, "seed", "--dsn=postgres://fake")
	require.NoError(t, err)
	assert.Contains(t, out, "seed ok: shops=2")

	shop, err := store.GetShop(context.Background(), "shop-station")
	require.NoError(t, err)
	assert.Equal(t, 3, shop.AveragePrepMinutes)

	require.NoError(t, store.Within(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Customers().Get(ctx, "alice")
		return err
	}))
}
