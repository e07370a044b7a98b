package grants

import (
	"context"

	"github.com/reviewstack/creditledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("grants",
	fx.Provide(New),
	fx.Invoke(StartWorker),
)

func StartWorker(lc fx.Lifecycle, cfg config.Config, worker *Worker) {
	if !cfg.GrantSweep.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
