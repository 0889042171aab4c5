package depletion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestPlanSpendsSoonestExpiringFirst(t *testing.T) {
	buckets := []Bucket{
		{ID: 2, Remaining: 10, ExpireAt: base.Add(30 * 24 * time.Hour)},
		{ID: 1, Remaining: 5, ExpireAt: base.Add(24 * time.Hour)},
	}

	plan, err := Plan(buckets, 8)
	require.NoError(t, err)
	assert.Equal(t, []Deduction{
		{BucketID: 1, Amount: 5},
		{BucketID: 2, Amount: 3},
	}, plan)
}

func TestPlanInsufficientReturnsNoPlan(t *testing.T) {
	buckets := []Bucket{
		{ID: 1, Remaining: 4, ExpireAt: base},
		{ID: 2, Remaining: 3, ExpireAt: base.Add(time.Hour)},
	}

	plan, err := Plan(buckets, 8)
	if !errors.Is(err, ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	assert.Nil(t, plan)
	assert.Equal(t, int64(4), buckets[0].Remaining)
}

func TestPlanBreaksExpiryTiesByID(t *testing.T) {
	buckets := []Bucket{
		{ID: 9, Remaining: 5, ExpireAt: base},
		{ID: 3, Remaining: 5, ExpireAt: base},
	}

	plan, err := Plan(buckets, 6)
	require.NoError(t, err)
	assert.Equal(t, []Deduction{
		{BucketID: 3, Amount: 5},
		{BucketID: 9, Amount: 1},
	}, plan)
}

func TestPlanZeroNeedIsEmpty(t *testing.T) {
	plan, err := Plan(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlanRejectsNegativeNeed(t *testing.T) {
	_, err := Plan(nil, -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPlanSkipsDrainedBuckets(t *testing.T) {
	buckets := []Bucket{
		{ID: 1, Remaining: 0, ExpireAt: base},
		{ID: 2, Remaining: 7, ExpireAt: base.Add(time.Hour)},
	}

	plan, err := Plan(buckets, 7)
	require.NoError(t, err)
	assert.Equal(t, []Deduction{{BucketID: 2, Amount: 7}}, plan)
	assert.Equal(t, int64(7), Total(plan))
}

func TestPlanIsDeterministic(t *testing.T) {
	buckets := []Bucket{
		{ID: 5, Remaining: 2, ExpireAt: base.Add(2 * time.Hour)},
		{ID: 4, Remaining: 2, ExpireAt: base.Add(time.Hour)},
		{ID: 6, Remaining: 2, ExpireAt: base.Add(time.Hour)},
	}

	first, err := Plan(buckets, 5)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Plan(buckets, 5)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, snowflakeIDs(first), []int64{4, 6, 5})
}

func snowflakeIDs(plan []Deduction) []int64 {
	ids := make([]int64, 0, len(plan))
	for _, d := range plan {
		ids = append(ids, d.BucketID.Int64())
	}
	return ids
}
