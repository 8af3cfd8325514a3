package api

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func MapAPIs(app *fiber.App, baseURL string) {
	api := app.Group(baseURL).Name("API")
	{
		music := api.Group("/music").Name("Music Proxy API")
		{
			music.Get("/search", searchMusic)
			music.Get("/track", getMusicTrack)
		}

		calls := api.Group("/calls").Use(authMiddleware).Name("Calls API")
		{
			calls.Get("/pending", listPendingCalls)
			calls.Get("/missed/count", countMissedCalls)
			calls.Get("/:callId", getCall)
			calls.Post("/", startCall)
			calls.Post("/:callId/accept", acceptCall)
			calls.Post("/:callId/decline", declineCall)
			calls.Post("/:callId/end", endCall)
		}

		api.Get("/unified", authMiddleware, websocket.New(unifiedGateway))
	}
}
