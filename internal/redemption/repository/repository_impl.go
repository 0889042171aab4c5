package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/redemption/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *domain.RedemptionRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO redemption_records (id, user_id, item_id, points_cost, status, idempotency_key, transaction_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.ItemID,
		record.PointsCost,
		record.Status,
		record.IdempotencyKey,
		record.TransactionID,
		string(record.Payload),
		record.CreatedAt,
	).Error
}

// ListByUser returns up to limit records older than after, newest first.
func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, after *pagination.Cursor, limit int) ([]domain.RedemptionRecord, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.RedemptionRecord{}).
		Where("user_id = ?", userID)
	if after != nil {
		id, err := snowflake.ParseString(after.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		createdAt := after.CreatedAt.UTC()
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", createdAt, createdAt, id)
	}

	var records []domain.RedemptionRecord
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
