package spawn

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/database"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/redis_client"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "spawn",
		Usage: "Generate passenger demand into the reservoirs",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run the generation scheduler for every route and depot",
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

					config := GetConfig()
					passengers := reservoir.NewMongoReservoir(reservoir.GetConfig(), publisher)

					generator, err := NewMongoGenerator(config, passengers, publisher)
					if err != nil {
						return err
					}

					scheduler := &Scheduler{
						Generator:  generator,
						Metadata:   generator.Metadata,
						Backlog:    passengers,
						Window:     config.Window,
						Interval:   config.Interval,
						MaxBacklog: config.MaxBacklog,
					}

					ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
					defer cancel()

					log.Info().
						Dur("window", scheduler.Window).
						Dur("interval", scheduler.Interval).
						Str("destinations", generator.Destinations.Name()).
						Msg("Starting spawn scheduler")
					scheduler.Run(ctx)

					return nil
				},
			},
			{
				Name:  "once",
				Usage: "spawn a single window for one route or depot and print the result",
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
					&cli.DurationFlag{
						Name:  "window",
						Usage: "Window length",
						Value: DefaultWindow,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Generate without persisting",
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}
					if err := redis_client.Connect(); err != nil {
						return err
					}

					entityType := ctdf.PassengerEntityType(c.String("type"))
					if entityType != ctdf.PassengerEntityRoute && entityType != ctdf.PassengerEntityDepot {
						return fmt.Errorf("unknown entity type %s", entityType)
					}

					passengers := reservoir.NewMongoReservoir(reservoir.GetConfig(), nil)
					generator, err := NewMongoGenerator(GetConfig(), passengers, events.NoopPublisher{})
					if err != nil {
						return err
					}

					entity := Entity{Type: entityType, Ref: c.String("entity")}

					var result *Result
					if c.Bool("dry-run") {
						result, err = generator.Generate(c.Context, entity, time.Now(), c.Duration("window"), 1)
					} else {
						result, err = generator.Spawn(c.Context, entity, time.Now(), c.Duration("window"), 1)
					}
					if err != nil {
						return err
					}

					pretty.Println(result)

					return nil
				},
			},
			{
				Name:  "import-config",
				Usage: "import spawn configs from a CSV file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to the CSV file",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					configs, err := LoadConfigCSV(c.String("file"))
					if err != nil {
						return err
					}

					return NewMongoConfigProvider().Import(c.Context, configs)
				},
			},
		},
	}
}
