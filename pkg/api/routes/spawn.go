package routes

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/travigo/ridership/pkg/ctdf"
	"github.com/travigo/ridership/pkg/reservoir"
	"github.com/travigo/ridership/pkg/spawn"
)

type spawnResponse struct {
	Entity      spawn.Entity            `json:"entity"`
	WindowStart time.Time               `json:"window_start"`
	Window      string                  `json:"window"`
	Lambda      float64                 `json:"lambda"`
	Sampled     int                     `json:"sampled"`
	Spawned     int                     `json:"spawned"`
	Failed      int                     `json:"failed"`
	Passengers  []*ctdf.PassengerRecord `json:"passengers,omitempty"`
}

func SpawnRouter(router fiber.Router, generator *spawn.DemandGenerator) {
	router.Post("/:identifier", func(c *fiber.Ctx) error {
		return spawnEntity(c, generator)
	})
}

func spawnEntity(c *fiber.Ctx, generator *spawn.DemandGenerator) error {
	entityType := ctdf.PassengerEntityType(c.Query("type", string(ctdf.PassengerEntityRoute)))
	if entityType != ctdf.PassengerEntityRoute && entityType != ctdf.PassengerEntityDepot {
		return sendError(c, fiber.StatusBadRequest, "Parameter type should be route or depot")
	}

	window, err := time.ParseDuration(c.Query("window", spawn.DefaultWindow.String()))
	if err != nil || window <= 0 {
		return sendError(c, fiber.StatusBadRequest, "Parameter window should be a positive duration")
	}

	entity := spawn.Entity{Type: entityType, Ref: c.Params("identifier")}

	var result *spawn.Result
	if c.QueryBool("dry_run", false) {
		result, err = generator.Generate(c.UserContext(), entity, time.Now(), window, 1)
	} else {
		result, err = generator.Spawn(c.UserContext(), entity, time.Now(), window, 1)
	}

	if errors.Is(err, spawn.ErrInvalidGeometry) {
		return sendError(c, fiber.StatusUnprocessableEntity, err.Error())
	} else if errors.Is(err, reservoir.ErrPersistFailure) && result != nil {
		c.Status(fiber.StatusMultiStatus)
	} else if err != nil {
		return sendStoreError(c, err)
	}

	response := spawnResponse{
		Entity:      result.Entity,
		WindowStart: result.WindowStart,
		Window:      result.Window.String(),
		Lambda:      result.Lambda,
		Sampled:     result.Sampled,
		Spawned:     len(result.Records),
		Failed:      len(result.Failed),
	}
	if c.QueryBool("passengers", false) {
		response.Passengers = result.Records
	}

	return c.JSON(response)
}
