package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/loyalty/internal/catalog/domain"
	"github.com/smallbiznis/loyalty/internal/clock"
	"github.com/smallbiznis/loyalty/internal/config"
	"github.com/smallbiznis/loyalty/internal/idempotency"
	idempotencydomain "github.com/smallbiznis/loyalty/internal/idempotency/domain"
	obslogger "github.com/smallbiznis/loyalty/internal/observability/logger"
	"github.com/smallbiznis/loyalty/internal/observability/metrics"
	"github.com/smallbiznis/loyalty/internal/points/depletion"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	"github.com/smallbiznis/loyalty/internal/redemption/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// errKeyTaken means another attempt owns the idempotency key.
var errKeyTaken = errors.New("idempotency_key_taken")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      *config.RedemptionConfigHolder
	Repo        domain.Repository
	Catalog     catalogdomain.Reader
	CatalogRepo catalogdomain.Repository
	Points      pointsdomain.Repository
	Idempotency idempotencydomain.Repository
	Guard       *idempotency.InFlightGuard `optional:"true"`
	Metrics     *metrics.Metrics           `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         *config.RedemptionConfigHolder
	repo        domain.Repository
	catalog     catalogdomain.Reader
	catalogRepo catalogdomain.Repository
	points      pointsdomain.Repository
	idempotency idempotencydomain.Repository
	guard       *idempotency.InFlightGuard
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("redemption.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Config,
		repo:        p.Repo,
		catalog:     p.Catalog,
		catalogRepo: p.CatalogRepo,
		points:      p.Points,
		idempotency: p.Idempotency,
		guard:       p.Guard,
		metrics:     p.Metrics,
		tracer:      otel.Tracer("loyalty/redemption"),
	}
}

// Redeem exchanges a user's points for a catalog item exactly once per
// (user, idempotency key). A recognised key returns the stored result.
func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (result domain.RedemptionResult, err error) {
	ctx, span := s.tracer.Start(ctx, "redemption.Redeem", trace.WithAttributes(
		attribute.String("user_id", req.UserID.String()),
		attribute.String("item_id", req.ItemID.String()),
	))
	started := time.Now()
	var itemType string
	defer func() {
		status := statusOf(result, err)
		s.metrics.RecordRedemption(ctx, status, itemType, result.Redemption.PointsCost, time.Since(started))
		if result.Replayed {
			s.metrics.RecordReplay(ctx)
		}
		span.SetAttributes(attribute.String("redemption.status", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()
	}()

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return domain.RedemptionResult{}, domain.ErrMissingIdempotencyKey
	}
	if req.UserID == 0 {
		return domain.RedemptionResult{}, domain.ErrInvalidUser
	}
	if req.ItemID == 0 {
		return domain.RedemptionResult{}, domain.ErrInvalidItem
	}
	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("user_id", req.UserID.String()),
		zap.String("item_id", req.ItemID.String()),
	)

	stored, state, err := s.lookup(ctx, req.UserID, key)
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	if state == keyCompleted {
		itemType = string(stored.Item.Type)
		log.Debug("redemption replayed", zap.String("redemption_id", stored.Redemption.ID.String()))
		return stored, nil
	}

	acquired, release := s.guard.Acquire(ctx, req.UserID, key)
	defer release(ctx)
	if !acquired {
		stored, err := s.awaitCommitted(ctx, req.UserID, key)
		itemType = string(stored.Item.Type)
		return stored, err
	}

	item, err := s.admit(ctx, req.UserID, req.ItemID)
	itemType = string(item.Type)
	if err != nil {
		if !isTerminal(err) {
			return domain.RedemptionResult{}, err
		}
		// A same-key attempt that committed after the first lookup drains
		// the stock or balance this request just saw; its result wins.
		stored, ok, serr := s.settle(ctx, req.UserID, key)
		if serr != nil {
			return domain.RedemptionResult{}, serr
		}
		if ok {
			itemType = string(stored.Item.Type)
			return stored, nil
		}
		return domain.RedemptionResult{}, err
	}

	result, err = s.execute(ctx, req.UserID, key, item)
	switch {
	case errors.Is(err, errKeyTaken):
		return s.awaitCommitted(ctx, req.UserID, key)
	case isTerminal(err):
		log.Warn("redemption aborted", zap.String("reason", err.Error()))
		return domain.RedemptionResult{}, err
	case err != nil:
		log.Error("redemption failed", zap.Error(err))
		return domain.RedemptionResult{}, err
	}

	log.Info("redemption committed",
		zap.String("redemption_id", result.Redemption.ID.String()),
		zap.Int64("points", result.Redemption.PointsCost),
		zap.String("item_type", itemType),
	)
	return result, nil
}

// admit runs the checks that need no lock: item state and the cached balance.
func (s *Service) admit(ctx context.Context, userID, itemID snowflake.ID) (catalogdomain.Item, error) {
	item, err := s.catalog.GetItem(ctx, itemID)
	if err != nil {
		return catalogdomain.Item{}, err
	}
	if item.PointsCost <= 0 {
		return item, domain.ErrInvalidItem
	}
	if !item.IsActive {
		return item, domain.ErrItemUnavailable
	}
	if !item.InStock() {
		return item, domain.ErrOutOfStock
	}

	// Cheap pre-check; the locked re-check inside execute is authoritative.
	user, err := s.points.FindUser(ctx, s.db, userID)
	if err != nil {
		return item, fmt.Errorf("load user balance: %w", err)
	}
	if user == nil || user.PointsBalance < item.PointsCost {
		return item, domain.ErrInsufficientPoints
	}
	return item, nil
}

// execute runs the atomic unit. Lock order is idempotency row, then the
// user's buckets, then the item's stock row.
func (s *Service) execute(ctx context.Context, userID snowflake.ID, key string, item catalogdomain.Item) (domain.RedemptionResult, error) {
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	cfg := s.cfg.Get()

	var result domain.RedemptionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reserved, err := s.idempotency.Reserve(ctx, tx, userID, key, now)
		if err != nil {
			return fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !reserved {
			return errKeyTaken
		}

		buckets, err := s.points.LockActiveBuckets(ctx, tx, userID, now)
		if err != nil {
			return fmt.Errorf("lock buckets: %w", err)
		}
		plan, err := depletion.Plan(toDepletionBuckets(buckets), item.PointsCost)
		if err != nil {
			return err
		}
		used := make([]pointsdomain.BucketDeduction, 0, len(plan))
		for _, d := range plan {
			if err := s.points.DeductBucket(ctx, tx, d.BucketID, d.Amount, now); err != nil {
				return fmt.Errorf("deduct bucket %s: %w", d.BucketID, err)
			}
			used = append(used, pointsdomain.BucketDeduction{BucketID: d.BucketID, PointsDeducted: d.Amount})
		}

		payload, err := json.Marshal(issueArtifact(cfg, item, key, now))
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		record := domain.RedemptionRecord{
			ID:             s.genID.Generate(),
			UserID:         userID,
			ItemID:         item.ID,
			PointsCost:     item.PointsCost,
			Status:         domain.StatusSuccess,
			IdempotencyKey: key,
			TransactionID:  s.genID.Generate(),
			Payload:        datatypes.JSON(payload),
			CreatedAt:      now,
		}
		if err := s.repo.Insert(ctx, tx, &record); err != nil {
			return fmt.Errorf("insert redemption: %w", err)
		}

		entry := pointsdomain.PointTransaction{
			ID:             record.TransactionID,
			UserID:         userID,
			Type:           pointsdomain.TransactionSpend,
			Amount:         -item.PointsCost,
			Status:         pointsdomain.TransactionStatusPosted,
			IdempotencyKey: key,
			ReasonCode:     pointsdomain.ReasonRedemption,
			Metadata: datatypes.NewJSONType(pointsdomain.TransactionMetadata{
				BucketsUsed:  used,
				RedemptionID: record.ID,
				ItemID:       item.ID,
			}),
			CreatedAt: now,
		}
		inserted, err := s.points.InsertTransaction(ctx, tx, &entry)
		if err != nil {
			return fmt.Errorf("insert spend transaction: %w", err)
		}
		if !inserted {
			return domain.ErrIdempotencyKeyReused
		}

		if err := s.points.AdjustBalance(ctx, tx, userID, -item.PointsCost, now); err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		snapshot := item
		if item.Limited() {
			if err := s.catalogRepo.DecrementStock(ctx, tx, item.ID); err != nil {
				return err
			}
			fresh, err := s.catalogRepo.FindByID(ctx, tx, item.ID)
			if err != nil {
				return fmt.Errorf("reload item: %w", err)
			}
			if fresh != nil {
				snapshot = *fresh
			}
		}

		result = domain.RedemptionResult{Redemption: record, Item: snapshot}
		response, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if err := s.idempotency.Complete(ctx, tx, userID, key, record.ID, response, now); err != nil {
			return fmt.Errorf("complete idempotency key: %w", err)
		}
		result.Response = response
		return nil
	})
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	return result, nil
}

type keyState int

const (
	keyAbsent keyState = iota
	keyInProgress
	keyCompleted
)

// lookup returns the committed result for (user, key), if any.
func (s *Service) lookup(ctx context.Context, userID snowflake.ID, key string) (domain.RedemptionResult, keyState, error) {
	record, err := s.idempotency.Find(ctx, s.db, userID, key)
	if err != nil {
		return domain.RedemptionResult{}, keyAbsent, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if record == nil {
		return domain.RedemptionResult{}, keyAbsent, nil
	}
	if !record.Completed() {
		return domain.RedemptionResult{}, keyInProgress, nil
	}

	var stored domain.RedemptionResult
	if err := json.Unmarshal(record.Response, &stored); err != nil {
		return domain.RedemptionResult{}, keyAbsent, fmt.Errorf("decode stored response: %w", err)
	}
	stored.Response = json.RawMessage(record.Response)
	stored.Replayed = true
	return stored, keyCompleted, nil
}

// awaitCommitted polls for the result of a concurrent attempt with the same key.
func (s *Service) awaitCommitted(ctx context.Context, userID snowflake.ID, key string) (domain.RedemptionResult, error) {
	attempts := s.cfg.Get().ReplayMaxAttempts
	for attempt := 0; attempt < attempts; attempt++ {
		stored, state, err := s.lookup(ctx, userID, key)
		if err != nil {
			return domain.RedemptionResult{}, err
		}
		if state == keyCompleted {
			return stored, nil
		}
		if err := s.pause(ctx, attempt); err != nil {
			return domain.RedemptionResult{}, err
		}
	}
	return domain.RedemptionResult{}, domain.ErrRedemptionInProgress
}

// settle reports the committed result for key after a rejected attempt. It
// waits while another attempt holds the key and gives up once none does.
func (s *Service) settle(ctx context.Context, userID snowflake.ID, key string) (domain.RedemptionResult, bool, error) {
	attempts := s.cfg.Get().ReplayMaxAttempts
	for attempt := 0; ; attempt++ {
		stored, state, err := s.lookup(ctx, userID, key)
		if err != nil {
			return domain.RedemptionResult{}, false, err
		}
		switch state {
		case keyCompleted:
			return stored, true, nil
		case keyAbsent:
			return domain.RedemptionResult{}, false, nil
		}
		if attempt+1 >= attempts {
			return domain.RedemptionResult{}, false, domain.ErrRedemptionInProgress
		}
		if err := s.pause(ctx, attempt); err != nil {
			return domain.RedemptionResult{}, false, err
		}
	}
}

// pause backs off linearly between ledger polls.
func (s *Service) pause(ctx context.Context, attempt int) error {
	timer := time.NewTimer(s.cfg.Get().ReplayBackoff() * time.Duration(attempt+1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) ListHistory(ctx context.Context, req domain.ListHistoryRequest) (domain.ListHistoryResponse, error) {
	if req.UserID == 0 {
		return domain.ListHistoryResponse{}, domain.ErrInvalidUser
	}
	cfg := s.cfg.Get()
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = cfg.HistoryDefaultPageSize
	}
	if pageSize > cfg.HistoryMaxPageSize {
		pageSize = cfg.HistoryMaxPageSize
	}

	cursor, err := pagination.DecodeCursor(strings.TrimSpace(req.PageToken))
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}

	records, err := s.repo.ListByUser(ctx, s.db, req.UserID, cursor, pageSize+1)
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}

	page, info, err := pagination.Trim(records, pageSize, func(r domain.RedemptionRecord) pagination.Cursor {
		return pagination.Cursor{ID: r.ID.String(), CreatedAt: r.CreatedAt}
	})
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}
	if page == nil {
		page = []domain.RedemptionRecord{}
	}
	return domain.ListHistoryResponse{PageInfo: info, Redemptions: page}, nil
}

func toDepletionBuckets(buckets []pointsdomain.PointBucket) []depletion.Bucket {
	out := make([]depletion.Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, depletion.Bucket{ID: b.ID, Remaining: b.Remaining, ExpireAt: b.ExpireAt})
	}
	return out
}

var terminalErrors = []error{
	domain.ErrMissingIdempotencyKey,
	domain.ErrInvalidUser,
	domain.ErrInvalidItem,
	domain.ErrItemNotFound,
	domain.ErrItemUnavailable,
	domain.ErrOutOfStock,
	domain.ErrInsufficientPoints,
	domain.ErrRedemptionInProgress,
	domain.ErrIdempotencyKeyReused,
}

func isTerminal(err error) bool {
	for _, target := range terminalErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func statusOf(result domain.RedemptionResult, err error) string {
	switch {
	case err == nil && result.Replayed:
		return "replay"
	case err == nil:
		return "success"
	}
	for _, target := range terminalErrors {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "error"
}
