package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/points/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var errGrantReplayed = errors.New("grant_replayed")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("points.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Grant credits a new bucket, its earn entry and the cached balance in one transaction.
func (s *Service) Grant(ctx context.Context, req domain.GrantRequest) (domain.GrantResult, error) {
	if req.UserID == 0 {
		return domain.GrantResult{}, domain.ErrInvalidUser
	}
	if req.Points <= 0 {
		return domain.GrantResult{}, domain.ErrInvalidPoints
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.GrantResult{}, domain.ErrMissingIdempotencyKey
	}
	now := s.clock.Now()
	if !req.ExpireAt.After(now) {
		return domain.GrantResult{}, domain.ErrInvalidExpiry
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = domain.ReasonGrant
	}

	bucket := domain.PointBucket{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		OriginalPoints: req.Points,
		Remaining:      req.Points,
		Source:         source,
		ExpireAt:       req.ExpireAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	entry := domain.PointTransaction{
		ID:             s.genID.Generate(),
		UserID:         req.UserID,
		Type:           domain.TransactionEarn,
		Amount:         req.Points,
		Status:         domain.TransactionStatusPosted,
		IdempotencyKey: key,
		ReasonCode:     domain.ReasonGrant,
		Metadata:       datatypes.NewJSONType(domain.TransactionMetadata{BucketID: bucket.ID}),
		CreatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureUser(ctx, tx, req.UserID, now); err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		inserted, err := s.repo.InsertTransaction(ctx, tx, &entry)
		if err != nil {
			return fmt.Errorf("insert earn transaction: %w", err)
		}
		if !inserted {
			return errGrantReplayed
		}
		if err := s.repo.InsertBucket(ctx, tx, &bucket); err != nil {
			return fmt.Errorf("insert bucket: %w", err)
		}
		if err := s.repo.AdjustBalance(ctx, tx, req.UserID, req.Points, now); err != nil {
			return fmt.Errorf("credit balance: %w", err)
		}
		return nil
	})
	if errors.Is(err, errGrantReplayed) {
		return s.replayGrant(ctx, req.UserID, key)
	}
	if err != nil {
		s.log.Error("grant failed", zap.Error(err), zap.String("user_id", req.UserID.String()))
		return domain.GrantResult{}, err
	}

	s.log.Info("points granted",
		zap.String("user_id", req.UserID.String()),
		zap.String("bucket_id", bucket.ID.String()),
		zap.Int64("points", req.Points),
		zap.Time("expire_at", bucket.ExpireAt),
	)
	return domain.GrantResult{Bucket: bucket, Transaction: entry}, nil
}

func (s *Service) replayGrant(ctx context.Context, userID snowflake.ID, key string) (domain.GrantResult, error) {
	entry, err := s.repo.FindTransactionByKey(ctx, s.db, userID, key)
	if err != nil {
		return domain.GrantResult{}, err
	}
	if entry == nil || entry.Type != domain.TransactionEarn {
		return domain.GrantResult{}, fmt.Errorf("idempotency key %q already used by another entry", key)
	}
	bucket, err := s.repo.FindBucket(ctx, s.db, entry.Metadata.Data().BucketID)
	if err != nil {
		return domain.GrantResult{}, err
	}
	if bucket == nil {
		return domain.GrantResult{}, fmt.Errorf("bucket for grant %s not found", entry.ID)
	}
	s.log.Debug("grant replayed", zap.String("user_id", userID.String()), zap.String("transaction_id", entry.ID.String()))
	return domain.GrantResult{Bucket: *bucket, Transaction: *entry, Replayed: true}, nil
}

func (s *Service) GetBalance(ctx context.Context, userID snowflake.ID) (domain.Balance, error) {
	if userID == 0 {
		return domain.Balance{}, domain.ErrInvalidUser
	}
	now := s.clock.Now()

	balance := domain.Balance{UserID: userID}
	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	if user != nil {
		balance.Cached = user.PointsBalance
	}

	buckets, err := s.repo.ListActiveBuckets(ctx, s.db, userID, now)
	if err != nil {
		return domain.Balance{}, err
	}
	for i, b := range buckets {
		balance.Available += b.Remaining
		if i == 0 {
			expireAt := b.ExpireAt
			balance.ExpiringSoonest = &expireAt
		}
	}

	if balance.Cached != balance.Available {
		total, err := s.repo.SumRemaining(ctx, s.db, userID)
		if err != nil {
			return domain.Balance{}, err
		}
		// Expired but unswept buckets legitimately keep the cache above Available.
		if total != balance.Cached {
			s.log.Warn("cached balance drift",
				zap.String("user_id", userID.String()),
				zap.Int64("cached", balance.Cached),
				zap.Int64("bucket_total", total),
			)
		}
	}

	return balance, nil
}
