package reservoir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "reservoir",
		Usage: "Inspect and maintain the passenger reservoirs",
		Subcommands: []*cli.Command{
			{
				Name:  "sweep",
				Usage: "run the expiry sweeper",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Sweep a single time and exit",
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

					ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer cancel()

					stopPublisher := publisher.Start(context.Background())
					defer stopPublisher()

					config := GetConfig()
					sweeper := &Sweeper{
						Reservoir: NewMongoReservoir(config, publisher),
						Interval:  config.SweepInterval,
					}

					if c.Bool("once") {
						sweeper.Sweep(ctx)
						return nil
					}

					log.Info().Dur("interval", sweeper.Interval).Msg("Starting expiry sweeper")
					sweeper.Run(ctx)

					return nil
				},
			},
			{
				Name:  "count",
				Usage: "count waiting passengers for a route or depot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "entity",
						Usage:    "Route or depot identifier",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "route or depot",
						Value: string(ctdf.PassengerEntityRoute),
					},
				},
				Action: func(c *cli.Context) error {
					entityType := ctdf.PassengerEntityType(c.String("type"))
					if entityType != ctdf.PassengerEntityRoute && entityType != ctdf.PassengerEntityDepot {
						return fmt.Errorf("unknown entity type %s", entityType)
					}

					if err := database.Connect(); err != nil {
						return err
					}

					reservoir := NewMongoReservoir(GetConfig(), nil)
					count, err := reservoir.CountWaiting(c.Context, entityType, c.String("entity"))
					if err != nil {
						return err
					}

					fmt.Printf("%s: %d waiting\n", c.String("entity"), count)

					return nil
				},
			},
			{
				Name:  "show",
				Usage: "print a single passenger record",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Passenger identifier",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					reservoir := NewMongoReservoir(GetConfig(), nil)
					record, err := reservoir.Get(c.Context, c.String("id"))
					if errors.Is(err, ErrNotFound) {
						return fmt.Errorf("passenger %s not found", c.String("id"))
					} else if err != nil {
						return err
					}

					pretty.Println(record)

					return nil
				},
			},
		},
	}
}
