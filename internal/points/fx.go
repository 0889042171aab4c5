package points

import (
	"github.com/smallbiznis/loyalty/internal/points/repository"
	"github.com/smallbiznis/loyalty/internal/points/service"
	"go.uber.org/fx"
)

var Module = fx.Module("points.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
