package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const localSession = "console_session"

// controlMessage is a text frame sent by the page
type controlMessage struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

// Upgrade binds the caller's session to the websocket connection
func (h *Console) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals(localSession, h.sessionFor(c))
	return c.Next()
}

// Stream pushes view events to the page as JSON text frames, starting
// after ?since=N. Text frames from the page carry URL field edits.
func (h *Console) Stream() fiber.Handler {
	return websocket.New(h.handleStream)
}

func (h *Console) handleStream(conn *websocket.Conn) {
	defer conn.Close()

	cs, ok := conn.Locals(localSession).(*consoleSession)
	if !ok {
		return
	}
	log := h.log.WithField("session", cs.ID())
	since, _ := strconv.ParseInt(conn.Query("since", "0"), 10, 64)

	log.Debug("WebSocket connection established")
	closed := make(chan struct{})
	go h.readControl(conn, cs, closed)

	for {
		changed := cs.bus.Changed()
		for _, ev := range cs.bus.Since(since) {
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Debug("WebSocket write error")
				return
			}
			since = ev.Seq
		}

		select {
		case <-changed:
		case <-closed:
			log.Debug("WebSocket connection closed")
			return
		}
	}
}

// readControl handles frames from the page until the connection drops
func (h *Console) readControl(conn *websocket.Conn, cs *consoleSession, closed chan<- struct{}) {
	defer close(closed)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg controlMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.log.WithError(err).Debug("Ignoring malformed control frame")
			continue
		}
		switch msg.Action {
		case "url_input":
			cs.URLChanged(msg.URL)
		default:
			h.log.WithField("action", msg.Action).Debug("Unknown control action")
		}
	}
}
