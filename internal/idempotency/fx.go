package idempotency

import (
	"github.com/smallbiznis/loyalty/internal/idempotency/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(repository.Provide),
	fx.Provide(NewRedisClient),
	fx.Provide(NewInFlightGuard),
)
