package schedule

import (
	"github.com/reviewstack/creditledger/internal/schedule/repository"
	"github.com/reviewstack/creditledger/internal/schedule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("schedule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
