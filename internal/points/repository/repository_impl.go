package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/points/domain"
	"github.com/smallbiznis/loyalty/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) EnsureUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID, now time.Time) error {
	user := domain.User{ID: userID, CreatedAt: now, UpdatedAt: now}
	return conn.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user).Error
}

func (r *repo) FindUser(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := conn.WithContext(ctx).Raw(
		`SELECT id, points_balance, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

// AdjustBalance refuses to drive the cached balance negative.
func (r *repo) AdjustBalance(ctx context.Context, conn *gorm.DB, userID snowflake.ID, delta int64, now time.Time) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE users SET points_balance = points_balance + ?, updated_at = ?
		 WHERE id = ? AND points_balance + ? >= 0`,
		delta,
		now,
		userID,
		delta,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBalanceOutOfSync
	}
	return nil
}

func (r *repo) InsertBucket(ctx context.Context, conn *gorm.DB, bucket *domain.PointBucket) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO point_buckets (id, user_id, original_points, remaining, source, expire_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		bucket.ID,
		bucket.UserID,
		bucket.OriginalPoints,
		bucket.Remaining,
		bucket.Source,
		bucket.ExpireAt,
		bucket.CreatedAt,
		bucket.UpdatedAt,
	).Error
}

func (r *repo) FindBucket(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PointBucket, error) {
	var bucket domain.PointBucket
	err := conn.WithContext(ctx).Raw(
		`SELECT id, user_id, original_points, remaining, source, expire_at, created_at, updated_at
		 FROM point_buckets WHERE id = ?`,
		id,
	).Scan(&bucket).Error
	if err != nil {
		return nil, err
	}
	if bucket.ID == 0 {
		return nil, nil
	}
	return &bucket, nil
}

// LockActiveBuckets takes the per-user write lock over every spendable bucket.
func (r *repo) LockActiveBuckets(ctx context.Context, conn *gorm.DB, userID snowflake.ID, now time.Time) ([]domain.PointBucket, error) {
	return r.activeBuckets(ctx, conn, userID, now, db.ForUpdate(conn))
}

func (r *repo) ListActiveBuckets(ctx context.Context, conn *gorm.DB, userID snowflake.ID, now time.Time) ([]domain.PointBucket, error) {
	return r.activeBuckets(ctx, conn, userID, now, "")
}

func (r *repo) activeBuckets(ctx context.Context, conn *gorm.DB, userID snowflake.ID, now time.Time, lock string) ([]domain.PointBucket, error) {
	var buckets []domain.PointBucket
	err := conn.WithContext(ctx).Raw(
		`SELECT id, user_id, original_points, remaining, source, expire_at, created_at, updated_at
		 FROM point_buckets
		 WHERE user_id = ? AND remaining > 0 AND expire_at > ?
		 ORDER BY expire_at ASC, id ASC`+lock,
		userID,
		now,
	).Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

func (r *repo) DeductBucket(ctx context.Context, conn *gorm.DB, bucketID snowflake.ID, amount int64, now time.Time) error {
	res := conn.WithContext(ctx).Exec(
		`UPDATE point_buckets SET remaining = remaining - ?, updated_at = ?
		 WHERE id = ? AND remaining >= ?`,
		amount,
		now,
		bucketID,
		amount,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBucketChanged
	}
	return nil
}

// SumRemaining includes expired buckets so it can be compared with the cached balance.
func (r *repo) SumRemaining(ctx context.Context, conn *gorm.DB, userID snowflake.ID) (int64, error) {
	var total int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(remaining), 0) FROM point_buckets WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// InsertTransaction reports false when (user_id, idempotency_key) already exists.
func (r *repo) InsertTransaction(ctx context.Context, conn *gorm.DB, tx *domain.PointTransaction) (bool, error) {
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(tx)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindTransactionByKey(ctx context.Context, conn *gorm.DB, userID snowflake.ID, key string) (*domain.PointTransaction, error) {
	var tx domain.PointTransaction
	err := conn.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Limit(1).
		Find(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}
