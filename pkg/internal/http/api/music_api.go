package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/uniwave/calling/pkg/internal/musickit"
)

// The music proxy keeps its own error body shape since the mobile client
// consumes these endpoints directly.

func musicError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func mapUpstreamError(c *fiber.Ctx, err error) error {
	var upstream *musickit.UpstreamError
	if errors.As(err, &upstream) {
		if upstream.Status >= 400 && upstream.Status < 500 {
			return musicError(c, upstream.Status, err.Error())
		}
		return musicError(c, fiber.StatusBadGateway, err.Error())
	}
	return musicError(c, fiber.StatusInternalServerError, err.Error())
}

func searchMusic(c *fiber.Ctx) error {
	q := c.Query("q")
	if len(q) == 0 {
		return musicError(c, fiber.StatusBadRequest, "Missing query parameter 'q'")
	}
	territory := c.Query("territory")
	limit := c.QueryInt("limit", 10)

	tracks, total, err := musickit.K.Search(c.UserContext(), q, territory, limit)
	if err != nil {
		return mapUpstreamError(c, err)
	}

	return c.JSON(fiber.Map{
		"tracks": tracks,
		"total":  total,
	})
}

func getMusicTrack(c *fiber.Ctx) error {
	id := c.Query("id")
	if len(id) == 0 {
		return musicError(c, fiber.StatusBadRequest, "Missing query parameter 'id'")
	}
	territory := c.Query("territory")

	track, err := musickit.K.GetTrack(c.UserContext(), id, territory)
	if err != nil {
		return mapUpstreamError(c, err)
	}

	return c.JSON(track)
}
