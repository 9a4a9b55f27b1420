package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/travigo/ridership/pkg/api"
	"github.com/travigo/ridership/pkg/dbwatch"
	"github.com/travigo/ridership/pkg/events"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/pickup"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
	"github.com/urfave/cli/v2"

	_ "time/tzdata"
)

func main() {
	if os.Getenv("RIDERSHIP_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("RIDERSHIP_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "ridership",
		Description: "Simulated transit ridership - spawns passenger demand and coordinates vehicle pickups",

		Commands: []*cli.Command{
			metadata.RegisterCLI(),
			spawn.RegisterCLI(),
			reservoir.RegisterCLI(),
			pickup.RegisterCLI(),
			events.RegisterCLI(),
			api.RegisterCLI(),
			dbwatch.RegisterCLI(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}
