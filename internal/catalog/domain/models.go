package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ItemType string

const (
	ItemTypePhysical ItemType = "physical"
	ItemTypeCoupon   ItemType = "coupon"
	ItemTypeVirtual  ItemType = "virtual"
)

const (
	AttrValidDays = "valid_days"
	AttrVendor    = "vendor"
)

// Item is a reward catalog entry. A nil Stock means unlimited.
type Item struct {
	ID         snowflake.ID      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name       string            `gorm:"size:255;not null" json:"name"`
	Type       ItemType          `gorm:"size:16;not null" json:"type"`
	PointsCost int64             `gorm:"not null" json:"points_cost"`
	Stock      *int64            `json:"stock"`
	IsActive   bool              `gorm:"not null" json:"is_active"`
	Attrs      datatypes.JSONMap `gorm:"not null" json:"attrs,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

func (Item) TableName() string { return "reward_items" }

func (i Item) Limited() bool { return i.Stock != nil }

func (i Item) InStock() bool { return i.Stock == nil || *i.Stock > 0 }

// ValidDays reads the coupon validity attribute, falling back to def.
func (i Item) ValidDays(def int) int {
	switch v := i.Attrs[AttrValidDays].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (i Item) Vendor() string {
	if v, ok := i.Attrs[AttrVendor].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
