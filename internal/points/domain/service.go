package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type GrantRequest struct {
	UserID         snowflake.ID
	Points         int64
	ExpireAt       time.Time
	Source         string
	IdempotencyKey string
}

type GrantResult struct {
	Bucket      PointBucket      `json:"bucket"`
	Transaction PointTransaction `json:"transaction"`
	Replayed    bool             `json:"replayed"`
}

// Balance reports the cached projection next to the authoritative bucket sum.
type Balance struct {
	UserID          snowflake.ID `json:"user_id"`
	Cached          int64        `json:"cached"`
	Available       int64        `json:"available"`
	ExpiringSoonest *time.Time   `json:"expiring_soonest,omitempty"`
}

type Service interface {
	Grant(ctx context.Context, req GrantRequest) (GrantResult, error)
	GetBalance(ctx context.Context, userID snowflake.ID) (Balance, error)
}

var (
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidPoints         = errors.New("invalid_points")
	ErrInvalidExpiry         = errors.New("invalid_expiry")
	ErrMissingIdempotencyKey = errors.New("missing_idempotency_key")
	ErrBucketChanged         = errors.New("bucket_changed")
	ErrBalanceOutOfSync      = errors.New("balance_out_of_sync")
)
