package ledger

import (
	"github.com/reviewstack/creditledger/internal/ledger/repository"
	"github.com/reviewstack/creditledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
