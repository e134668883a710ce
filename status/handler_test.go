package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func dialTestHandler(t *testing.T, broker *Broker) *websocket.Conn {
	t.Helper()

	router := chi.NewRouter()
	router.Method(http.MethodGet, "/conversations/{conversationID}/status", NewHandler(broker, zerolog.Nop()))
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, ts.URL+"/conversations/conv-1/status", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "done") }) //nolint:errcheck // Test cleanup
	return ws
}

func readWireMessage(t *testing.T, ws *websocket.Conn) map[string]interface{} {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var wire map[string]interface{}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("message is not a JSON object %q: %v", data, err)
	}
	return wire
}

func TestHandler_AnswersPingWithPong(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ws := dialTestHandler(t, broker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	wire := readWireMessage(t, ws)
	if wire["type"] != "pong" {
		t.Errorf("expected pong, got %v", wire)
	}
}

func TestHandler_ForwardsPublishedEvents(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ws := dialTestHandler(t, broker)

	// The handler subscribes after the handshake; wait for the subscription
	// before publishing so the event is not dropped.
	deadline := time.Now().Add(2 * time.Second)
	for broker.SubscriberCount("conv-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	broker.Publish("conv-1", Event{Type: EventExtractionComplete, SummaryTriggered: true})

	wire := readWireMessage(t, ws)
	if wire["type"] != "extraction_complete" {
		t.Fatalf("expected extraction_complete, got %v", wire)
	}
	if wire["summary_triggered"] != true {
		t.Errorf("summary_triggered not carried: %v", wire)
	}
}

func TestHandler_IgnoresMalformedViewerMessages(t *testing.T) {
	broker := NewBroker(zerolog.Nop())
	ws := dialTestHandler(t, broker)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, []byte(`not json`)); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	// The connection must survive; a ping afterwards is still answered.
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	wire := readWireMessage(t, ws)
	if wire["type"] != "pong" {
		t.Errorf("expected pong after malformed message, got %v", wire)
	}
}
