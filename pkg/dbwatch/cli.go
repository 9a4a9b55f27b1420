package dbwatch

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "dbwatch",
		Usage: "Watches the database and invalidates cached passengers and spawn configs",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the change stream watchers",
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					log.Info().Msg("Starting dbwatch server")

					ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer cancel()

					reservoirConfig := reservoir.GetConfig()
					passengerCache := reservoir.NewCache(redis_client.Client, reservoirConfig.CacheTTL, reservoirConfig.CacheCellMeters)
					configCache := spawn.NewCachedConfigProvider(spawn.NewMongoConfigProvider(), redis_client.Client, spawn.GetConfig().ConfigTTL)

					watchers := pool.New().WithContext(ctx).WithCancelOnError()
					watchers.Go(NewPassengersWatch(passengerCache).Run)
					watchers.Go(NewSpawnConfigsWatch(configCache).Run)

					return watchers.Wait()
				},
			},
		},
	}
}
