package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DemoUserID snowflake.ID = 1

const (
	demoGrantKey     = "seed-demo-grant"
	demoGrantPoints  = 500
	demoGrantExpires = 365 * 24 * time.Hour
)

var Module = fx.Module("seed",
	fx.Invoke(func(lc fx.Lifecycle, cfg config.Config, db *gorm.DB, points pointsdomain.Service, clk clock.Clock, log *zap.Logger) {
		if !cfg.SeedDemoData {
			return
		}
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return EnsureDemoData(ctx, db, points, clk.Now(), log)
			},
		})
	}),
)

// DemoItems is a small catalog covering every artifact type.
func DemoItems() []catalogdomain.Item {
	limited := int64(25)
	return []catalogdomain.Item{
		{ID: 1001, Name: "Coffee Mug", Type: catalogdomain.ItemTypePhysical, PointsCost: 120, Stock: &limited, IsActive: true, Attrs: datatypes.JSONMap{}},
		{ID: 1002, Name: "10% Off Coupon", Type: catalogdomain.ItemTypeCoupon, PointsCost: 80, IsActive: true, Attrs: datatypes.JSONMap{catalogdomain.AttrValidDays: 14}},
		{ID: 1003, Name: "Game Credit", Type: catalogdomain.ItemTypeVirtual, PointsCost: 200, IsActive: true, Attrs: datatypes.JSONMap{catalogdomain.AttrVendor: "Steam"}},
	}
}

// EnsureDemoData inserts the demo catalog and credits the demo user once.
func EnsureDemoData(ctx context.Context, db *gorm.DB, points pointsdomain.Service, now time.Time, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	items := DemoItems()
	for i := range items {
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items).Error; err != nil {
		return err
	}

	res, err := points.Grant(ctx, pointsdomain.GrantRequest{
		UserID:         DemoUserID,
		Points:         demoGrantPoints,
		ExpireAt:       now.Add(demoGrantExpires),
		Source:         "seed",
		IdempotencyKey: demoGrantKey,
	})
	if err != nil {
		return err
	}

	log.Info("demo data ensured",
		zap.Int("items", len(items)),
		zap.String("user_id", DemoUserID.String()),
		zap.Bool("grant_replayed", res.Replayed),
	)
	return nil
}
