package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the Balance Store. Lock and mutation methods expect a transaction handle.
type Repository interface {
	EnsureUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error
	FindUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*User, error)
	AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta int64, now time.Time) error

	InsertBucket(ctx context.Context, db *gorm.DB, bucket *PointBucket) error
	FindBucket(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PointBucket, error)
	LockActiveBuckets(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) ([]PointBucket, error)
	ListActiveBuckets(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) ([]PointBucket, error)
	DeductBucket(ctx context.Context, db *gorm.DB, bucketID snowflake.ID, amount int64, now time.Time) error
	SumRemaining(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, tx *PointTransaction) (bool, error)
	FindTransactionByKey(ctx context.Context, db *gorm.DB, userID snowflake.ID, key string) (*PointTransaction, error)
}
