package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/catalog/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

type Reader struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewReader(p Params) domain.Reader {
	return &Reader{db: p.DB, repo: p.Repo}
}

func (r *Reader) GetItem(ctx context.Context, id snowflake.ID) (domain.Item, error) {
	if id == 0 {
		return domain.Item{}, domain.ErrInvalidItem
	}
	item, err := r.repo.FindByID(ctx, r.db, id)
	if err != nil {
		return domain.Item{}, err
	}
	if item == nil {
		return domain.Item{}, domain.ErrNotFound
	}
	return *item, nil
}
