package dedupe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/tech-news-radar/internal/dedupe"
	"github.com/DeafMist/tech-news-radar/internal/models"
)

type stubFinder struct {
	records map[string]*models.NewsRecord
	calls   int
	err     error
}

func (s *stubFinder) FindByURL(_ context.Context, url string) (*models.NewsRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records[url], nil
}

func TestStoredURLIsNotNew(t *testing.T) {
	finder := &stubFinder{records: map[string]*models.NewsRecord{"https://x/1": {URL: "https://x/1"}}}
	d := dedupe.New(finder)
	ctx := context.Background()

	isNew, err := d.IsNew(ctx, "https://x/1")
	require.NoError(t, err)
	require.False(t, isNew)

	isNew, err = d.IsNew(ctx, "https://x/2")
	require.NoError(t, err)
	require.True(t, isNew)

	_, err = d.IsNew(ctx, "https://x/1")
	require.NoError(t, err)
	require.Equal(t, 2, finder.calls)
}

func TestMarkSeenBlocksSecondSource(t *testing.T) {
	d := dedupe.New(&stubFinder{})
	ctx := context.Background()

	isNew, err := d.IsNew(ctx, "https://x/3")
	require.NoError(t, err)
	require.True(t, isNew)
	d.MarkSeen("https://x/3")

	isNew, err = d.IsNew(ctx, "https://x/3")
	require.NoError(t, err)
	require.False(t, isNew)
	require.Equal(t, 1, d.Seen())
}

func TestExactStringEquality(t *testing.T) {
	d := dedupe.New(nil)
	d.MarkSeen("https://x/4")

	isNew, err := d.IsNew(context.Background(), "https://x/4/")
	require.NoError(t, err)
	require.True(t, isNew)
}

func TestLookupErrorPropagates(t *testing.T) {
	boom := errors.New("store down")
	d := dedupe.New(&stubFinder{err: boom})

	_, err := d.IsNew(context.Background(), "https://x/5")
	require.ErrorIs(t, err, boom)
}
