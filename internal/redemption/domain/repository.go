package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *RedemptionRecord) error
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, after *pagination.Cursor, limit int) ([]RedemptionRecord, error)
}
