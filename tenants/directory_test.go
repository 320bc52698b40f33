package tenants_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-coworking-session/storage"
	"github.com/jrsteele09/go-coworking-session/tenants"
	tenantrepofakes "github.com/jrsteele09/go-coworking-session/tenants/repofakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoFetcher struct {
	repo  tenants.Repo
	calls atomic.Int32
}

func (f *repoFetcher) GetSpaceInfo(_ context.Context, slug string) (*tenants.SpaceInfo, error) {
	f.calls.Add(1)
	return f.repo.Get(slug)
}

func setupTestFixture(t *testing.T) (*tenants.Directory, *repoFetcher, storage.Storage) {
	t.Helper()
	fetcher := &repoFetcher{repo: tenantrepofakes.NewFakeTenantRepo(&tenants.SpaceInfo{
		Name:           "Acme Works",
		Slug:           "acme",
		Address:        "1 Main Street",
		OperatingHours: &tenants.OperatingHours{Start: "08:00", End: "18:00"},
	})}
	s := storage.NewMemory()
	return tenants.NewDirectory(fetcher, s), fetcher, s
}

func TestDirectoryFetchesOnce(t *testing.T) {
	ctx := context.Background()
	dir, fetcher, s := setupTestFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			space, err := dir.Get(ctx, "acme")
			if assert.NoError(t, err) {
				assert.Equal(t, "Acme Works", space.Name)
			}
		}()
	}
	wg.Wait()

	space, err := dir.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "08:00", space.OperatingHours.Start)
	require.Equal(t, int32(1), fetcher.calls.Load())

	persisted, ok := tenants.LoadPersisted(ctx, s)
	require.True(t, ok)
	require.Equal(t, "acme", persisted.Slug)
}

func TestDirectoryUnknownSpace(t *testing.T) {
	dir, _, _ := setupTestFixture(t)

	_, err := dir.Get(context.Background(), "nowhere")
	require.True(t, errors.Is(err, tenants.ErrSpaceNotFound))
}

func TestDirectoryWithoutStorage(t *testing.T) {
	ctx := context.Background()
	_, fetcher, _ := setupTestFixture(t)
	dir := tenants.NewDirectory(fetcher, nil)

	_, err := dir.Get(ctx, "acme")
	require.NoError(t, err)
	_, ok := dir.Persisted(ctx)
	require.False(t, ok)
}

func TestFakeRepoList(t *testing.T) {
	repo := tenantrepofakes.NewFakeTenantRepo(
		&tenants.SpaceInfo{Slug: "b"},
		&tenants.SpaceInfo{Slug: "a"},
		&tenants.SpaceInfo{Slug: "c"},
	)

	page, err := repo.List(1, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "b", page[0].Slug)

	require.NoError(t, repo.Delete("b"))
	_, err = repo.Get("b")
	require.ErrorIs(t, err, tenants.ErrSpaceNotFound)
}
