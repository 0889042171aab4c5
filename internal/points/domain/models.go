package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User carries the cached balance projection. The buckets are authoritative.
type User struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PointsBalance int64        `gorm:"column:points_balance;not null;default:0" json:"points_balance"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// PointBucket is one expiring grant. Drained buckets stay for the audit trail.
type PointBucket struct {
	ID             snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         snowflake.ID `gorm:"not null;index:idx_point_buckets_user_active,priority:1" json:"user_id"`
	OriginalPoints int64        `gorm:"not null" json:"original_points"`
	Remaining      int64        `gorm:"not null" json:"remaining"`
	Source         string       `gorm:"size:64;not null;default:''" json:"source"`
	ExpireAt       time.Time    `gorm:"not null;index:idx_point_buckets_user_active,priority:2" json:"expire_at"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (PointBucket) TableName() string { return "point_buckets" }

type TransactionType string

const (
	TransactionEarn  TransactionType = "earn"
	TransactionSpend TransactionType = "spend"
)

const (
	TransactionStatusPosted = "posted"

	ReasonGrant      = "grant"
	ReasonRedemption = "redemption"
)

// BucketDeduction records how many points a spend took from one bucket.
type BucketDeduction struct {
	BucketID       snowflake.ID `json:"bucket_id"`
	PointsDeducted int64        `json:"points_deducted"`
}

type TransactionMetadata struct {
	BucketsUsed  []BucketDeduction `json:"buckets_used,omitempty"`
	BucketID     snowflake.ID      `json:"bucket_id,omitempty"`
	RedemptionID snowflake.ID      `json:"redemption_id,omitempty"`
	ItemID       snowflake.ID      `json:"item_id,omitempty"`
}

// PointTransaction is an immutable ledger entry; Amount is negative for spends.
type PointTransaction struct {
	ID             snowflake.ID                            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         snowflake.ID                            `gorm:"not null;uniqueIndex:ux_point_transactions_user_key,priority:1" json:"user_id"`
	Type           TransactionType                         `gorm:"size:16;not null" json:"type"`
	Amount         int64                                   `gorm:"not null" json:"amount"`
	Status         string                                  `gorm:"size:16;not null;default:'posted'" json:"status"`
	IdempotencyKey string                                  `gorm:"size:191;not null;uniqueIndex:ux_point_transactions_user_key,priority:2" json:"idempotency_key"`
	ReasonCode     string                                  `gorm:"size:64;not null" json:"reason_code"`
	Metadata       datatypes.JSONType[TransactionMetadata] `gorm:"not null" json:"metadata"`
	CreatedAt      time.Time                               `gorm:"not null" json:"created_at"`
}

func (PointTransaction) TableName() string { return "point_transactions" }

// DeductedTotal sums the per-bucket deductions of a spend.
func (t PointTransaction) DeductedTotal() int64 {
	var total int64
	for _, d := range t.Metadata.Data().BucketsUsed {
		total += d.PointsDeducted
	}
	return total
}
