package migration

import (
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	idempotencydomain "github.com/smallbiznis/loyalty/internal/idempotency/domain"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	redemptiondomain "github.com/smallbiznis/loyalty/internal/redemption/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Apply),
)

// Models lists every table owned by the ledger.
func Models() []any {
	return []any{
		&pointsdomain.User{},
		&pointsdomain.PointBucket{},
		&pointsdomain.PointTransaction{},
		&catalogdomain.Item{},
		&redemptiondomain.RedemptionRecord{},
		&idempotencydomain.Record{},
	}
}

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
