package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time so expiry and artifact windows can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
