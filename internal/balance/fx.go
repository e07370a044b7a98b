package balance

import (
	"github.com/reviewstack/creditledger/internal/balance/repository"
	"github.com/reviewstack/creditledger/internal/balance/service"
	"go.uber.org/fx"
)

var Module = fx.Module("balance.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
