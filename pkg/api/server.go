package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/ridership/pkg/api/routes"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
)

type Server struct {
	Generator  *spawn.DemandGenerator
	Passengers *reservoir.Reservoir
	Geometries *metadata.GeometryIndex
}

func (s *Server) App() *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	group := webApp.Group("/ridership")

	group.Get("version", routes.APIVersion)
	group.Get("stats", routes.Stats)

	routes.SpawnRouter(group.Group("/spawn"), s.Generator)

	routes.RoutesRouter(group.Group("/routes"), reservoir.NewRouteReservoir(s.Passengers), s.Geometries)
	routes.DepotsRouter(group.Group("/depots"), reservoir.NewDepotReservoir(s.Passengers))

	routes.PassengersRouter(group.Group("/passengers"), s.Passengers)

	return webApp
}
