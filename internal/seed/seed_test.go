package seed

import (
	"context"
	"testing"
	"time"

	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	pointsrepository "github.com/smallbiznis/loyalty/internal/points/repository"
	pointsservice "github.com/smallbiznis/loyalty/internal/points/service"
	"github.com/smallbiznis/loyalty/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureDemoDataIsIdempotent(t *testing.T) {
	conn := testutil.NewDB(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := pointsservice.New(pointsservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(now),
		Repo:  pointsrepository.Provide(),
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, EnsureDemoData(context.Background(), conn, points, now, zap.NewNop()))
	}

	var items int64
	require.NoError(t, conn.Model(&catalogdomain.Item{}).Count(&items).Error)
	assert.Equal(t, int64(len(DemoItems())), items)

	var user pointsdomain.User
	require.NoError(t, conn.First(&user, "id = ?", DemoUserID).Error)
	assert.Equal(t, int64(demoGrantPoints), user.PointsBalance)
}
