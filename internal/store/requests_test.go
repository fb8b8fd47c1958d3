// ABOUTME: Tests for access request persistence
// ABOUTME: Covers creation defaults, filtering and status review

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetAccessRequest(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	req := &AccessRequest{
		RequestType:    RequestTypeProfile,
		ProfileID:      "profile-42",
		RequesterEmail: "Member@Example.com",
		RequesterOrg:   "Acme",
		Message:        "please",
	}
	require.NoError(t, store.CreateAccessRequest(ctx, req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, RequestStatusPending, req.Status)

	got, err := store.GetAccessRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "member@example.com", got.RequesterEmail)
	assert.Equal(t, "profile-42", got.ProfileID)
	assert.Equal(t, "Acme", got.RequesterOrg)
	assert.Equal(t, RequestStatusPending, got.Status)
	assert.Nil(t, got.ReviewedAt)

	_, err = store.GetAccessRequest(ctx, "missing")
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)
}

func TestCreateAccessRequest_RejectsUnknownType(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	err := store.CreateAccessRequest(context.Background(), &AccessRequest{
		RequestType:    "everything",
		RequesterEmail: "a@example.com",
	})
	assert.Error(t, err)
}

func TestListAccessRequests_Filter(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, email := range []string{"a@example.com", "b@example.com", "a@example.com"} {
		require.NoError(t, store.CreateAccessRequest(ctx, &AccessRequest{
			RequestType:    RequestTypeBP,
			RequesterEmail: email,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := store.ListAccessRequests(ctx, AccessRequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "newest first")

	mine, err := store.ListAccessRequests(ctx, AccessRequestFilter{RequesterEmail: "A@example.com"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	limited, err := store.ListAccessRequests(ctx, AccessRequestFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpdateAccessRequestStatus(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	req := &AccessRequest{RequestType: RequestTypePortability, RequesterEmail: "a@example.com"}
	require.NoError(t, store.CreateAccessRequest(ctx, req))

	require.NoError(t, store.UpdateAccessRequestStatus(ctx, req.ID, RequestStatusApproved, "Admin@Example.com", "ok", now))

	got, err := store.GetAccessRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusApproved, got.Status)
	assert.Equal(t, "admin@example.com", got.ReviewedBy)
	assert.Equal(t, "ok", got.Reason)
	require.NotNil(t, got.ReviewedAt)

	pending, err := store.ListAccessRequests(ctx, AccessRequestFilter{Status: RequestStatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, store.UpdateAccessRequestStatus(ctx, req.ID, RequestStatusPending, "admin@example.com", "", now))
	reopened, err := store.GetAccessRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestStatusPending, reopened.Status)
	assert.Empty(t, reopened.ReviewedBy)
	assert.Nil(t, reopened.ReviewedAt)

	err = store.UpdateAccessRequestStatus(ctx, req.ID, "maybe", "admin@example.com", "", now)
	assert.ErrorIs(t, err, ErrInvalidRequestStatus)

	err = store.UpdateAccessRequestStatus(ctx, "missing", RequestStatusRejected, "admin@example.com", "", now)
	assert.ErrorIs(t, err, ErrAccessRequestNotFound)
}
