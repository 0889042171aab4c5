package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/idempotency/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNotReserved = errors.New("idempotency key was not reserved")

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Reserve(ctx context.Context, conn *gorm.DB, userID snowflake.ID, key string, now time.Time) (bool, error) {
	record := domain.Record{
		UserID:         userID,
		IdempotencyKey: key,
		Status:         domain.StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Complete(ctx context.Context, conn *gorm.DB, userID snowflake.ID, key string, redemptionID snowflake.ID, response json.RawMessage, now time.Time) error {
	res := conn.WithContext(ctx).
		Model(&domain.Record{}).
		Where("user_id = ? AND idempotency_key = ? AND status = ?", userID, key, domain.StatusInProgress).
		Updates(map[string]any{
			"status":        domain.StatusCompleted,
			"redemption_id": redemptionID,
			"response":      datatypes.JSON(response),
			"updated_at":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotReserved
	}
	return nil
}

func (r *repo) Find(ctx context.Context, conn *gorm.DB, userID snowflake.ID, key string) (*domain.Record, error) {
	var record domain.Record
	err := conn.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.UserID == 0 {
		return nil, nil
	}
	return &record, nil
}
