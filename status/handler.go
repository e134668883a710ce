package status

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler upgrades viewers to a websocket, subscribes them to their
// conversation's events, and forwards each event as one JSON object per
// message. Inbound traffic is limited to keepalive pings.
type Handler struct {
	broker *Broker
	logger zerolog.Logger
}

// NewHandler creates a websocket status handler over the given broker.
func NewHandler(broker *Broker, logger zerolog.Logger) *Handler {
	return &Handler{
		broker: broker,
		logger: logger.With().Str("component", "status-ws").Logger(),
	}
}

// ServeHTTP implements http.Handler. The conversation id comes from the
// route parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if conversationID == "" {
		http.Error(w, "conversation id is required", http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to accept websocket")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended") //nolint:errcheck // Close error on teardown

	events, cancel := h.broker.Subscribe(conversationID)
	defer cancel()

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	h.logger.Debug().Str("conversation_id", conversationID).Msg("Viewer connected")

	// Read loop: answers pings, detects disconnect.
	go func() {
		defer cancelCtx()
		h.readLoop(ctx, ws, conversationID)
	}()

	// Write loop: forwards broker events until the subscription or the
	// connection goes away.
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.writeEvent(ctx, ws, event); err != nil {
				h.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("Viewer write failed")
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conversationID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug().Str("conversation_id", conversationID).Msg("Viewer disconnected")
			}
			return
		}

		event, err := Decode(data)
		if err != nil {
			h.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("Malformed message from viewer")
			continue
		}

		switch event.Type {
		case EventPing:
			if err := h.writeEvent(ctx, ws, Event{Type: EventPong}); err != nil {
				return
			}
		case EventUnknown:
			h.logger.Warn().
				Str("conversation_id", conversationID).
				Str("wire_type", event.RawType).
				Msg("Ignoring unknown event type from viewer")
		default:
			// Viewers are subscribers; anything else inbound is ignored.
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, ws *websocket.Conn, event Event) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
