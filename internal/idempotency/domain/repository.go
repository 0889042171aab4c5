package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Reserve inserts an in_progress row and reports false if the key is taken.
	Reserve(ctx context.Context, db *gorm.DB, userID snowflake.ID, key string, now time.Time) (bool, error)
	Complete(ctx context.Context, db *gorm.DB, userID snowflake.ID, key string, redemptionID snowflake.ID, response json.RawMessage, now time.Time) error
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, key string) (*Record, error)
}
