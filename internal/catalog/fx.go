package catalog

import (
	"github.com/smallbiznis/loyalty/internal/catalog/repository"
	"github.com/smallbiznis/loyalty/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.reader",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewReader),
)
