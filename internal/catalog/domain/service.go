package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Reader supplies item snapshots to the redemption engine.
type Reader interface {
	GetItem(ctx context.Context, id snowflake.ID) (Item, error)
}

var (
	ErrInvalidItem = errors.New("invalid_item")
	ErrNotFound    = errors.New("item_not_found")
	ErrOutOfStock  = errors.New("out_of_stock")
)
