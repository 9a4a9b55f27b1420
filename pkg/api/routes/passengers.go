package routes

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/ridership/pkg/ctdf"
)

// Passengers is the per record side of a reservoir
type Passengers interface {
	Get(ctx context.Context, identifier string) (*ctdf.PassengerRecord, error)
	ClaimToken(ctx context.Context, identifier string, vehicleRef string) (ctdf.ClaimResult, *ctdf.ClaimToken, error)
	Board(ctx context.Context, identifier string, vehicleRef string) (bool, error)
}

func PassengersRouter(router fiber.Router, passengers Passengers) {
	router.Get("/:identifier", func(c *fiber.Ctx) error {
		return getPassenger(c, passengers)
	})
	router.Post("/:identifier/claim", func(c *fiber.Ctx) error {
		return claimPassenger(c, passengers)
	})
	router.Post("/:identifier/board", func(c *fiber.Ctx) error {
		return boardPassenger(c, passengers)
	})
}

func getPassenger(c *fiber.Ctx, passengers Passengers) error {
	passenger, err := passengers.Get(c.UserContext(), c.Params("identifier"))
	if err != nil {
		return sendStoreError(c, err)
	}

	return sendReduced(c, passenger)
}

func claimPassenger(c *fiber.Ctx, passengers Passengers) error {
	vehicleRef := c.Query("vehicle")
	if vehicleRef == "" {
		return sendError(c, fiber.StatusBadRequest, "Parameter vehicle must be provided")
	}

	result, token, err := passengers.ClaimToken(c.UserContext(), c.Params("identifier"), vehicleRef)
	if err != nil {
		return sendStoreError(c, err)
	}

	switch result {
	case ctdf.ClaimResultOK:
		return sendReduced(c, token)
	case ctdf.ClaimResultNotFound:
		c.Status(fiber.StatusNotFound)
	case ctdf.ClaimResultExpired:
		c.Status(fiber.StatusGone)
	default:
		c.Status(fiber.StatusConflict)
	}

	return c.JSON(fiber.Map{
		"result": result,
	})
}

func boardPassenger(c *fiber.Ctx, passengers Passengers) error {
	vehicleRef := c.Query("vehicle")
	if vehicleRef == "" {
		return sendError(c, fiber.StatusBadRequest, "Parameter vehicle must be provided")
	}

	boarded, err := passengers.Board(c.UserContext(), c.Params("identifier"), vehicleRef)
	if err != nil {
		return sendStoreError(c, err)
	}
	if !boarded {
		c.Status(fiber.StatusConflict)
	}

	return c.JSON(fiber.Map{
		"boarded": boarded,
	})
}
