package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/points/depletion"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
)

type RedeemRequest struct {
	UserID         snowflake.ID
	ItemID         snowflake.ID
	IdempotencyKey string
}

type ListHistoryRequest struct {
	UserID    snowflake.ID
	PageToken string
	PageSize  int
}

type ListHistoryResponse struct {
	pagination.PageInfo
	Redemptions []RedemptionRecord `json:"redemptions"`
}

type Service interface {
	Redeem(ctx context.Context, req RedeemRequest) (RedemptionResult, error)
	ListHistory(ctx context.Context, req ListHistoryRequest) (ListHistoryResponse, error)
}

var (
	ErrMissingIdempotencyKey = errors.New("missing_idempotency_key")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidItem           = catalogdomain.ErrInvalidItem
	ErrItemNotFound          = catalogdomain.ErrNotFound
	ErrItemUnavailable       = errors.New("item_unavailable")
	ErrOutOfStock            = catalogdomain.ErrOutOfStock
	ErrInsufficientPoints    = depletion.ErrInsufficient
	ErrRedemptionInProgress  = errors.New("redemption_in_progress")
	ErrIdempotencyKeyReused  = errors.New("idempotency_key_reused")
)
