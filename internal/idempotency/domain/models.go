package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Record maps (user, idempotency key) to at most one terminal redemption
// result. Response holds the exact bytes returned to the first caller.
type Record struct {
	UserID         snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	IdempotencyKey string         `gorm:"primaryKey;size:191" json:"idempotency_key"`
	Status         Status         `gorm:"size:16;not null" json:"status"`
	RedemptionID   *snowflake.ID  `json:"redemption_id,omitempty"`
	Response       datatypes.JSON `gorm:"type:json" json:"response,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string { return "idempotency_keys" }

func (r Record) Completed() bool {
	return r.Status == StatusCompleted && len(r.Response) > 0
}
