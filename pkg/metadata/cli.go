package metadata

import (
	"context"

	"github.com/travigo/ridership/pkg/database"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "metadata",
		Usage: "Manage the route and depot metadata demand is generated against",
		Subcommands: []*cli.Command{
			{
				Name:  "import",
				Usage: "import routes and depots from a YAML fixture file into MongoDB",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "Path to the YAML fixture",
						Required: true,
					},
				},
				Action: func(c *cli.Context) error {
					if err := database.Connect(); err != nil {
						return err
					}

					static, err := LoadStaticFile(c.String("file"))
					if err != nil {
						return err
					}

					return NewMongoProvider().Import(context.Background(), static)
				},
			},
		},
	}
}
