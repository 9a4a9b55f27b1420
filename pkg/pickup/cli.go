package pickup

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/util"
	"github.com/urfave/cli/v2"
)

type Config struct {
	PickupRadius float64
	Lookahead    float64
	PollInterval time.Duration
}

func GetConfig() Config {
	env := util.GetEnvironmentVariables()

	return Config{
		PickupRadius: util.EnvFloat(env, "RIDERSHIP_PICKUP_RADIUS_METERS", DefaultPickupRadius),
		Lookahead:    util.EnvFloat(env, "RIDERSHIP_PICKUP_LOOKAHEAD_METERS", DefaultLookahead),
		PollInterval: util.EnvDuration(env, "RIDERSHIP_PICKUP_POLL_INTERVAL", DefaultPollInterval),
	}
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "pickup",
		Usage: "Vehicle side pickup of waiting passengers",
		Subcommands: []*cli.Command{
			{
				Name:  "simulate",
				Usage: "drive simulated vehicles along a route picking up passengers",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "route",
						Usage:    "Route identifier",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "vehicles",
						Usage: "Number of vehicles",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "capacity",
						Usage: "Seats per vehicle",
						Value: 40,
					},
					&cli.Float64Flag{
						Name:  "speed",
						Usage: "Vehicle speed in meters per second",
						Value: 8,
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
					geometries := metadata.NewGeometryIndex(metadata.NewMongoProvider())

					config := GetConfig()
					fleet, err := NewRouteFleet(c.Context, c.String("route"), geometries, reservoir.NewRouteReservoir(passengers), passengers, FleetOptions{
						Vehicles:     c.Int("vehicles"),
						Capacity:     c.Int("capacity"),
						Speed:        c.Float64("speed"),
						PickupRadius: config.PickupRadius,
						Lookahead:    config.Lookahead,
						PollInterval: config.PollInterval,
					})
					if err != nil {
						return err
					}

					ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer cancel()

					log.Info().Str("route", c.String("route")).Int("vehicles", len(fleet.Coordinators)).Msg("Starting simulated fleet")
					fleet.Run(ctx)

					return nil
				},
			},
		},
	}
}
