package api

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/api/stats"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the ridership web API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run web api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "listen",
						Value:   ":8080",
						Usage:   "listen target for the web server",
						EnvVars: []string{"RIDERSHIP_API_LISTEN"},
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					publisher, err := events.NewQueuePublisher()
					if err != nil {
						return err
					}
					stopPublisher := publisher.Start(context.Background())
					defer stopPublisher()

					passengers := reservoir.NewMongoReservoir(reservoir.GetConfig(), publisher)

					generator, err := spawn.NewMongoGenerator(spawn.GetConfig(), passengers, publisher)
					if err != nil {
						return err
					}

					ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer cancel()

					go stats.UpdateReservoirStats(ctx, generator.Metadata, passengers, time.Minute)

					server := &Server{
						Generator:  generator,
						Passengers: passengers,
						Geometries: generator.Geometries,
					}
					webApp := server.App()

					go func() {
						<-ctx.Done()
						if err := webApp.ShutdownWithTimeout(10 * time.Second); err != nil {
							log.Error().Err(err).Msg("Failed to shutdown web api")
						}
					}()

					log.Info().Str("listen", c.String("listen")).Msg("Starting web api")

					return webApp.Listen(c.String("listen"))
				},
			},
		},
	}
}
