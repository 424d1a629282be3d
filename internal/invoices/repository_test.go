package invoices_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/ksef-connector/internal/invoices"
	"github.com/rezonia/ksef-connector/internal/model"
)

func repositories(t *testing.T) map[string]invoices.Repository {
	repos := map[string]invoices.Repository{
		"memory": invoices.NewMemoryRepository(),
	}
	fileRepo, err := invoices.NewFileRepository(t.TempDir())
	require.NoError(t, err)
	repos["file"] = fileRepo

	if url := os.Getenv("KSEF_TEST_REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		require.NoError(t, err)
		client := redis.NewClient(opts)
		t.Cleanup(func() { _ = client.Close() })
		repos["redis"] = invoices.NewRedisRepository(client, "ksef-test:"+t.Name()+":")
	}
	return repos
}

func draft(id string) model.Invoice {
	return model.Invoice{
		ID:        id,
		Number:    "FV/" + id,
		IssueDate: "2024-03-01",
		Status:    model.StatusDraft,
		Items:     []model.LineItem{{Description: "x", NetAmount: "1", VATRate: "23"}},
	}
}

func TestRepository_PutGetList(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(ctx, draft("b")))
			require.NoError(t, repo.Put(ctx, draft("a")))

			inv, err := repo.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "FV/a", inv.Number)
			assert.Len(t, inv.Items, 1)

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "a", list[0].ID)

			_, err = repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, invoices.ErrNotFound)
		})
	}
}

func TestRepository_PutRequiresID(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			var inputErr *model.InvalidInputError
			assert.ErrorAs(t, repo.Put(context.Background(), model.Invoice{}), &inputErr)
		})
	}
}

func TestRepository_StatusLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.Put(ctx, draft("inv-1")))
			require.NoError(t, repo.MarkSent(ctx, "inv-1", "REF-1"))

			inv, err := repo.Get(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusSent, inv.Status)
			assert.Equal(t, "REF-1", inv.ReferenceNumber)

			changed, err := repo.UpdateStatus(ctx, "inv-1", model.StatusAccepted, "KSEF-1")
			require.NoError(t, err)
			assert.True(t, changed)

			changed, err = repo.UpdateStatus(ctx, "inv-1", model.StatusAccepted, "KSEF-1")
			require.NoError(t, err)
			assert.False(t, changed, "repeating an update is a no-op")

			require.NoError(t, repo.MarkSent(ctx, "inv-1", "REF-1"))
			inv, err = repo.Get(ctx, "inv-1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusAccepted, inv.Status, "terminal status is never downgraded")
			assert.Equal(t, "KSEF-1", inv.KSeFNumber)

			_, err = repo.UpdateStatus(ctx, "missing", model.StatusRejected, "")
			assert.ErrorIs(t, err, invoices.ErrNotFound)
			assert.ErrorIs(t, repo.MarkSent(ctx, "missing", "R"), invoices.ErrNotFound)
		})
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := invoices.NewMemoryRepository()
	require.NoError(t, repo.Put(ctx, draft("a")))

	inv, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	inv.Items[0].Description = "mutated"

	again, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Items[0].Description)
}

func TestFileRepository_NullFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoices.json"), []byte("null"), 0o600))

	repo, err := invoices.NewFileRepository(dir)
	require.NoError(t, err)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, repo.Put(ctx, draft("a")))
	inv, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "FV/a", inv.Number)
}

func TestFileRepository_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := invoices.NewFileRepository(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, draft("a")))
	require.NoError(t, first.MarkSent(ctx, "a", "REF-A"))

	second, err := invoices.NewFileRepository(dir)
	require.NoError(t, err)
	list, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusSent, list[0].Status)
	assert.Equal(t, "REF-A", list[0].ReferenceNumber)
}
