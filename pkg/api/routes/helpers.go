package routes

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/travigo/ridership/pkg/metadata"
	"github.com/travigo/ridership/pkg/reservoir"
)

func sendError(c *fiber.Ctx, status int, message string) error {
	c.Status(status)
	return c.JSON(fiber.Map{
		"error": message,
	})
}

// sendStoreError maps reservoir and metadata errors onto response codes
func sendStoreError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, reservoir.ErrNotFound), errors.Is(err, metadata.ErrNotFound):
		return sendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, reservoir.ErrStoreTimeout):
		return sendError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		return sendError(c, fiber.StatusInternalServerError, err.Error())
	}
}

func outputGroups(c *fiber.Ctx) []string {
	if c.QueryBool("detailed", false) {
		return []string{"basic", "detailed"}
	}
	return []string{"basic"}
}

func sendReduced(c *fiber.Ctx, value interface{}) error {
	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: outputGroups(c),
	}, value)
	if err != nil {
		return sendError(c, fiber.StatusInternalServerError, "Sherrif could not reduce response")
	}

	return c.JSON(reduced)
}
