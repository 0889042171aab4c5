package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"gorm.io/datatypes"
)

type Status string

const StatusSuccess Status = "success"

// Payload is generated once per redemption and stored verbatim.
type Payload struct {
	IdempotencyKey string     `json:"idempotency_key"`
	RedeemedAt     time.Time  `json:"redeemed_at"`
	Code           string     `json:"code,omitempty"`
	ValidDays      int        `json:"valid_days,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Vendor         string     `json:"vendor,omitempty"`
}

// RedemptionRecord is the user-facing receipt. Payload keeps the exact bytes issued at commit.
type RedemptionRecord struct {
	ID             snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         snowflake.ID   `gorm:"not null;uniqueIndex:ux_redemption_records_user_key,priority:1;index:idx_redemption_records_user_created,priority:1" json:"user_id"`
	ItemID         snowflake.ID   `gorm:"not null" json:"item_id"`
	PointsCost     int64          `gorm:"not null" json:"points_cost"`
	Status         Status         `gorm:"size:16;not null" json:"status"`
	IdempotencyKey string         `gorm:"size:191;not null;uniqueIndex:ux_redemption_records_user_key,priority:2" json:"-"`
	TransactionID  snowflake.ID   `gorm:"not null" json:"transaction_id"`
	Payload        datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_redemption_records_user_created,priority:2" json:"created_at"`
}

func (RedemptionRecord) TableName() string { return "redemption_records" }

func (r RedemptionRecord) DecodePayload() (Payload, error) {
	var p Payload
	err := json.Unmarshal(r.Payload, &p)
	return p, err
}

// RedemptionResult is returned by Redeem. Response carries the serialized
// result exactly as first committed, so replays can be written unchanged.
type RedemptionResult struct {
	Redemption RedemptionRecord   `json:"redemption"`
	Item       catalogdomain.Item `json:"item"`

	Response json.RawMessage `json:"-"`
	Replayed bool            `json:"-"`
}
