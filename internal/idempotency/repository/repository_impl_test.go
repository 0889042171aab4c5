package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/loyalty/internal/idempotency/domain"
	"github.com/smallbiznis/loyalty/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveCompleteFind(t *testing.T) {
	conn := testutil.NewDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := repo.Reserve(ctx, conn, 1, "key-1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Reserve(ctx, conn, 1, "key-1", now)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := repo.Find(ctx, conn, 1, "key-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, domain.StatusInProgress, pending.Status)
	assert.False(t, pending.Completed())

	body := json.RawMessage(`{"redemption":{"id":"7"},"item":{"id":"3"}}`)
	require.NoError(t, repo.Complete(ctx, conn, 1, "key-1", 7, body, now))
	assert.Error(t, repo.Complete(ctx, conn, 1, "key-1", 7, body, now))

	done, err := repo.Find(ctx, conn, 1, "key-1")
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.True(t, done.Completed())
	assert.Equal(t, string(body), string(done.Response))
	require.NotNil(t, done.RedemptionID)
	assert.Equal(t, int64(7), done.RedemptionID.Int64())
}

func TestFindMissing(t *testing.T) {
	conn := testutil.NewDB(t)

	record, err := Provide().Find(context.Background(), conn, 1, "nope")
	require.NoError(t, err)
	assert.Nil(t, record)
}
