package routes

import (
	"math"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
)

const defaultLookahead = 500.0

func RoutesRouter(router fiber.Router, routeReservoir *reservoir.RouteReservoir, geometries *metadata.GeometryIndex) {
	router.Get("/:identifier/passengers", func(c *fiber.Ctx) error {
		return listRoutePassengers(c, routeReservoir, geometries)
	})
}

func DepotsRouter(router fiber.Router, depotReservoir *reservoir.DepotReservoir) {
	router.Get("/:identifier/passengers", func(c *fiber.Ctx) error {
		return listDepotPassengers(c, depotReservoir)
	})
}

// listRoutePassengers takes the vehicle either as an arc position or as a lon/lat that is
// projected onto the route
func listRoutePassengers(c *fiber.Ctx, routeReservoir *reservoir.RouteReservoir, geometries *metadata.GeometryIndex) error {
	routeRef := c.Params("identifier")

	query := reservoir.RouteQuery{
		RouteRef:  routeRef,
		Lookahead: c.QueryFloat("lookahead", defaultLookahead),
		Capacity:  c.QueryInt("capacity", 0),
	}

	direction := ctdf.PassengerDirection(c.Query("direction"))
	switch direction {
	case "", ctdf.PassengerDirectionNone:
	case ctdf.PassengerDirectionInbound, ctdf.PassengerDirectionOutbound:
		query.Direction = direction
	default:
		return sendError(c, fiber.StatusBadRequest, "Parameter direction should be inbound or outbound")
	}

	if !finite(query.Lookahead) {
		return sendError(c, fiber.StatusBadRequest, "Parameter lookahead should be a finite number")
	}
	if query.Lookahead < 0 || query.Capacity < 0 {
		return sendError(c, fiber.StatusBadRequest, "Parameters lookahead and capacity cannot be negative")
	}

	switch {
	case c.Query("position") != "":
		query.Position = c.QueryFloat("position", 0)
		if !finite(query.Position) {
			return sendError(c, fiber.StatusBadRequest, "Parameter position should be a finite number")
		}
	case c.Query("lon") != "" && c.Query("lat") != "":
		location := ctdf.NewLocation(c.QueryFloat("lon", 0), c.QueryFloat("lat", 0))
		if !location.IsValid() {
			return sendError(c, fiber.StatusBadRequest, "Parameters lon and lat should be a valid coordinate")
		}

		geometry, err := geometries.Geometry(c.UserContext(), routeRef)
		if err != nil {
			return sendStoreError(c, err)
		}
		query.Position, _ = geometry.Project(location)
	default:
		return sendError(c, fiber.StatusBadRequest, "Either position or lon and lat must be provided")
	}

	passengers, err := routeReservoir.Query(c.UserContext(), query)
	if err != nil {
		return sendStoreError(c, err)
	}
	if passengers == nil {
		passengers = []*ctdf.PassengerRecord{}
	}

	return sendReduced(c, passengers)
}

func listDepotPassengers(c *fiber.Ctx, depotReservoir *reservoir.DepotReservoir) error {
	query := reservoir.DepotQuery{
		DepotRef: c.Params("identifier"),
		RouteRef: c.Query("route"),
		Capacity: c.QueryInt("capacity", 0),
	}
	if query.Capacity < 0 {
		return sendError(c, fiber.StatusBadRequest, "Parameter capacity cannot be negative")
	}

	passengers, err := depotReservoir.Query(c.UserContext(), query)
	if err != nil {
		return sendStoreError(c, err)
	}
	if passengers == nil {
		passengers = []*ctdf.PassengerRecord{}
	}

	return sendReduced(c, passengers)
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
