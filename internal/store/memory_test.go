package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tech-news-radar/internal/models"
	"github.com/DeafMist/tech-news-radar/internal/store"
)

func TestMemoryStagesUntilCommit(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	now := time.Now()

	rec := &models.NewsRecord{Title: "A", URL: "https://x/a", CreatedAt: now}
	require.NoError(t, m.Create(ctx, rec))
	require.NotEmpty(t, rec.ID)

	got, err := m.FindByURL(ctx, "https://x/a")
	require.NoError(t, err)
	require.Nil(t, got)

	err = m.Create(ctx, &models.NewsRecord{URL: "https://x/a", CreatedAt: now})
	require.ErrorIs(t, err, store.ErrDuplicateURL)

	skipped, err := m.Commit(ctx)
	require.NoError(t, err)
	require.Empty(t, skipped)
	got, err = m.FindByURL(ctx, "https://x/a")
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	err = m.Create(ctx, &models.NewsRecord{URL: "https://x/a", CreatedAt: now})
	require.ErrorIs(t, err, store.ErrDuplicateURL)
}

func TestMemoryCountLatestAndPrune(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	base := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

	for i, url := range []string{"https://x/old", "https://x/mid", "https://x/new"} {
		require.NoError(t, m.Create(ctx, &models.NewsRecord{URL: url, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	_, err := m.Commit(ctx)
	require.NoError(t, err)

	n, err := m.CountSince(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	latest, err := m.Latest(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "https://x/new", latest[0].URL)

	deleted, err := m.DeleteOlderThan(ctx, base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	require.Equal(t, 2, m.Len())
}

func TestMemoryCommitSkipsURLsStoredMeanwhile(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	staged := &models.NewsRecord{Title: "mine", URL: "https://x/race"}
	require.NoError(t, m.Create(ctx, staged))
	require.NoError(t, m.Create(ctx, &models.NewsRecord{Title: "ok", URL: "https://x/ok"}))
	m.Insert(models.NewsRecord{ID: "other", Title: "theirs", URL: "https://x/race"})

	skipped, err := m.Commit(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"https://x/race"}, skipped)

	got, err := m.FindByURL(ctx, "https://x/race")
	require.NoError(t, err)
	require.Equal(t, "other", got.ID)
	require.Equal(t, 2, m.Len())
}

func TestMemoryDiscardDropsStaged(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Create(ctx, &models.NewsRecord{URL: "https://x/a"}))
	m.Discard()

	skipped, err := m.Commit(ctx)
	require.NoError(t, err)
	require.Empty(t, skipped)
	require.Zero(t, m.Len())
	require.NoError(t, m.Create(ctx, &models.NewsRecord{URL: "https://x/a"}))
}
