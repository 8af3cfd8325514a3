package api

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/uniwave/calling/pkg/internal/models"
	"github.com/uniwave/calling/pkg/internal/services"
)

// wsPusher serializes writes to one websocket connection; the read loop,
// the watcher and the expiry timer all push packets concurrently.
type wsPusher struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (p *wsPusher) Push(packet models.UnifiedPacket) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.WriteMessage(websocket.TextMessage, packet.Marshal())
}

// wsRinger tells the client to start or stop looping the ringtone. The
// actual playback happens on the device; an autoplay block over there is
// reported back as a warning packet, never an error here.
type wsRinger struct {
	pusher *wsPusher
}

func (r *wsRinger) Start() error {
	r.pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallRing})
	return nil
}

func (r *wsRinger) Stop() {
	r.pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallRingStop})
}

// wsAlerter relays platform notifications through the client, tracking
// the notification permission it reported.
type wsAlerter struct {
	pusher *wsPusher

	mu         sync.Mutex
	permission services.AlertPermission
}

func (a *wsAlerter) Permission() services.AlertPermission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission
}

func (a *wsAlerter) RequestPermission() services.AlertPermission {
	// Asking is asynchronous over the wire; stay undecided until the
	// client reports the outcome.
	a.pusher.Push(models.UnifiedPacket{Action: models.UnifiedAlertRequest})
	return a.Permission()
}

func (a *wsAlerter) SetPermission(p services.AlertPermission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.permission == services.AlertDenied {
		// A denial sticks; clients must not flip it back silently.
		return
	}
	a.permission = p
}

func (a *wsAlerter) Alert(call models.IncomingCall) error {
	a.pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallAlert, Payload: call})
	return nil
}

func parseAlertPermission(raw string) services.AlertPermission {
	switch raw {
	case "granted":
		return services.AlertGranted
	case "denied":
		return services.AlertDenied
	default:
		return services.AlertUndecided
	}
}

func unifiedGateway(c *websocket.Conn) {
	user := c.Locals("user").(models.Account)

	pusher := &wsPusher{conn: c}
	ringer := &wsRinger{pusher: pusher}
	alerter := &wsAlerter{
		pusher:     pusher,
		permission: parseAlertPermission(c.Query("alerts")),
	}

	// Callers learn their session through this registration when a callee
	// accepts one of their invitations.
	services.RegisterClient(user.ID, pusher)
	defer services.UnregisterClient(user.ID, pusher)

	presenter := services.NewPresenter(user, ringer, alerter)
	presenter.OnExpire(func(call models.IncomingCall) {
		pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallMissed, Payload: call})
	})

	watcher := services.NewWatcher(services.NewStoreFeed())
	if err := watcher.StartListening(user.ID, func(call models.IncomingCall) {
		if err := presenter.Present(call); err != nil {
			return
		}
		pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallIncoming, Payload: call})
	}); err != nil {
		pusher.Push(models.UnifiedPacket{Action: "error", Message: err.Error()})
		return
	}

	// Event loop
	var session *services.CallSession
	var task models.UnifiedPacket
	for {
		_, packet, err := c.ReadMessage()
		if err != nil {
			break
		}
		if err := jsoniter.Unmarshal(packet, &task); err != nil {
			pusher.Push(models.UnifiedPacket{
				Action:  "error",
				Message: "unable to unmarshal your command, requires json request",
			})
			continue
		}

		switch task.Action {
		case "calls.accept":
			// The client echoes which call it accepted, so a surface that
			// already rotated is not accepted by mistake.
			var payload struct {
				CallID string `json:"call_id"`
			}
			models.FitStruct(task.Payload, &payload)
			if active := presenter.Active(); len(payload.CallID) > 0 &&
				(active == nil || active.CallID != payload.CallID) {
				pusher.Push(models.UnifiedPacket{Action: "error", Message: "call is no longer presented"})
				continue
			}

			accepted, err := presenter.Accept()
			if err != nil {
				pusher.Push(models.UnifiedPacket{Action: "error", Message: err.Error()})
				continue
			}
			session = accepted
			pusher.Push(models.UnifiedPacket{Action: models.UnifiedCallSession, Payload: session})
		case "calls.decline":
			presenter.Decline()
		case "calls.dismiss":
			presenter.Dismiss()
		case "calls.audio.toggle":
			var payload struct {
				Enabled bool `json:"enabled"`
			}
			models.FitStruct(task.Payload, &payload)
			if on, err := session.ToggleAudio(payload.Enabled); err != nil {
				pusher.Push(models.UnifiedPacket{Action: "error", Message: err.Error()})
			} else {
				pusher.Push(models.UnifiedPacket{Action: "calls.audio.toggle", Payload: fiber.Map{"enabled": on}})
			}
		case "calls.video.toggle":
			var payload struct {
				Enabled bool `json:"enabled"`
			}
			models.FitStruct(task.Payload, &payload)
			if on, err := session.ToggleVideo(payload.Enabled); err != nil {
				pusher.Push(models.UnifiedPacket{Action: "error", Message: err.Error()})
			} else {
				pusher.Push(models.UnifiedPacket{Action: "calls.video.toggle", Payload: fiber.Map{"enabled": on}})
			}
		case "calls.end":
			if err := session.End(); err != nil {
				pusher.Push(models.UnifiedPacket{Action: "error", Message: err.Error()})
				continue
			}
			session = nil
		case "alerts.granted":
			alerter.SetPermission(services.AlertGranted)
		case "alerts.denied":
			alerter.SetPermission(services.AlertDenied)
		default:
			pusher.Push(models.UnifiedPacket{Action: "error", Message: "unknown action"})
		}
	}

	watcher.StopListening()
	presenter.Close()
}
