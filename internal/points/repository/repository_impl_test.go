package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/points/domain"
	"github.com/smallbiznis/loyalty/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDeductBucketGuardsRemaining(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.EnsureUser(ctx, conn, 1, now))
	bucket := domain.PointBucket{ID: 10, UserID: 1, OriginalPoints: 5, Remaining: 5, ExpireAt: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.InsertBucket(ctx, conn, &bucket))

	assert.ErrorIs(t, repo.DeductBucket(ctx, conn, 10, 6, now), domain.ErrBucketChanged)
	require.NoError(t, repo.DeductBucket(ctx, conn, 10, 5, now))

	stored, err := repo.FindBucket(ctx, conn, 10)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Zero(t, stored.Remaining)

	active, err := repo.LockActiveBuckets(ctx, conn, 1, now)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestLockActiveBucketsOrdersByExpiryThenID(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.EnsureUser(ctx, conn, 1, now))
	for _, b := range []domain.PointBucket{
		{ID: 3, UserID: 1, OriginalPoints: 1, Remaining: 1, ExpireAt: now.Add(2 * time.Hour)},
		{ID: 2, UserID: 1, OriginalPoints: 1, Remaining: 1, ExpireAt: now.Add(time.Hour)},
		{ID: 1, UserID: 1, OriginalPoints: 1, Remaining: 1, ExpireAt: now.Add(2 * time.Hour)},
		{ID: 4, UserID: 1, OriginalPoints: 1, Remaining: 1, ExpireAt: now.Add(-time.Hour)},
	} {
		b.CreatedAt, b.UpdatedAt = now, now
		require.NoError(t, repo.InsertBucket(ctx, conn, &b))
	}

	buckets, err := repo.LockActiveBuckets(ctx, conn, 1, now)
	require.NoError(t, err)
	ids := make([]int64, 0, len(buckets))
	for _, b := range buckets {
		ids = append(ids, b.ID.Int64())
	}
	assert.Equal(t, []int64{2, 1, 3}, ids)
}

func TestAdjustBalanceNeverGoesNegative(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.EnsureUser(ctx, conn, 5, now))
	require.NoError(t, repo.EnsureUser(ctx, conn, 5, now))
	require.NoError(t, repo.AdjustBalance(ctx, conn, 5, 10, now))
	assert.ErrorIs(t, repo.AdjustBalance(ctx, conn, 5, -11, now), domain.ErrBalanceOutOfSync)

	user, err := repo.FindUser(ctx, conn, 5)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(10), user.PointsBalance)
}

func TestInsertTransactionReportsDuplicateKey(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, repo.EnsureUser(ctx, conn, 1, now))

	entry := func(id int64) *domain.PointTransaction {
		return &domain.PointTransaction{
			ID:             snowflake.ID(id),
			UserID:         1,
			Type:           domain.TransactionEarn,
			Amount:         1,
			Status:         domain.TransactionStatusPosted,
			IdempotencyKey: "dup",
			ReasonCode:     domain.ReasonGrant,
			Metadata:       datatypes.NewJSONType(domain.TransactionMetadata{}),
			CreatedAt:      now,
		}
	}
	inserted, err := repo.InsertTransaction(ctx, conn, entry(100))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertTransaction(ctx, conn, entry(101))
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.FindTransactionByKey(ctx, conn, 1, "dup")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(100), found.ID.Int64())
}
