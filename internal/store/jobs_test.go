// ABOUTME: Tests for job listing persistence
// ABOUTME: Covers upsert semantics, activation toggles and active counts

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertJob(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	job := &Job{Slug: "cfo-paris", Title: "CFO", Location: "Paris", Active: true, CreatedAt: created}
	require.NoError(t, store.UpsertJob(ctx, job))

	updated := &Job{Slug: "cfo-paris", Title: "Group CFO", Active: true, CreatedAt: created.Add(time.Hour), UpdatedAt: created.Add(time.Hour)}
	require.NoError(t, store.UpsertJob(ctx, updated))

	jobs, err := store.ListJobs(ctx, false)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Group CFO", jobs[0].Title)
	assert.Empty(t, jobs[0].Location)
	assert.True(t, jobs[0].CreatedAt.Equal(created), "created_at is kept from the first insert")
	assert.True(t, jobs[0].UpdatedAt.Equal(created.Add(time.Hour)))
}

func TestSetJobActive_AndCount(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.UpsertJob(ctx, &Job{Slug: "a", Title: "A", Active: true}))
	require.NoError(t, store.UpsertJob(ctx, &Job{Slug: "b", Title: "B", Active: true}))

	count, err := store.CountActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.SetJobActive(ctx, "a", false, now))

	count, err = store.CountActiveJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	active, err := store.ListJobs(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].Slug)

	err = store.SetJobActive(ctx, "missing", true, now)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
