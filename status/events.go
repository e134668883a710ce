// Package status implements the conversation-scoped status channel: typed
// lifecycle events, an in-process fan-out broker, phase-guarded publishing
// helpers, and the websocket endpoint that carries events to viewers.
package status

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a status event variant.
type EventType string

const (
	EventPing               EventType = "ping"
	EventPong               EventType = "pong"
	EventThinkingStart      EventType = "thinking_start"
	EventThinkingEnd        EventType = "thinking_end"
	EventExtractionStart    EventType = "extraction_start"
	EventExtractionComplete EventType = "extraction_complete"
	EventSummaryComplete    EventType = "summary_complete"

	// Reserved for future streaming support; defined so the codec treats
	// them as known, but nothing produces them yet.
	EventProgress EventType = "progress"
	EventStream   EventType = "stream"

	// EventConnectionFailed is a client-local terminal notification emitted
	// when reconnection attempts are exhausted. It never travels the wire.
	EventConnectionFailed EventType = "connection_failed"

	// EventUnknown is the decode result for unrecognized wire types.
	EventUnknown EventType = "unknown"
)

// Trigger says what prompted a thinking phase.
type Trigger string

const (
	TriggerUserMessage       Trigger = "user_message"
	TriggerConversationPoint Trigger = "conversation_point"
	TriggerAutonomous        Trigger = "autonomous"
)

// Event is one status channel message. Fields beyond Type are populated only
// for the variants that carry them.
type Event struct {
	Type             EventType
	Trigger          Trigger // thinking_start only
	SummaryTriggered bool    // extraction_complete only
	Reason           string  // synthesized client-local events only

	// RawType preserves the original wire type when Type is EventUnknown.
	RawType string
}

var knownWireTypes = map[EventType]bool{
	EventPing:               true,
	EventPong:               true,
	EventThinkingStart:      true,
	EventThinkingEnd:        true,
	EventExtractionStart:    true,
	EventExtractionComplete: true,
	EventSummaryComplete:    true,
	EventProgress:           true,
	EventStream:             true,
}

// wireEvent is the superset JSON shape; each variant uses a subset of fields.
type wireEvent struct {
	Type             string  `json:"type"`
	Trigger          Trigger `json:"trigger,omitempty"`
	SummaryTriggered *bool   `json:"summary_triggered,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// Encode serializes an event as one JSON object. extraction_complete always
// carries summary_triggered, even when false.
func (e Event) Encode() ([]byte, error) {
	wire := wireEvent{Type: string(e.Type)}
	switch e.Type {
	case EventThinkingStart:
		wire.Trigger = e.Trigger
	case EventExtractionComplete:
		triggered := e.SummaryTriggered
		wire.SummaryTriggered = &triggered
	case EventThinkingEnd:
		wire.Reason = e.Reason
	}
	return json.Marshal(wire)
}

// Decode parses one wire message into an Event. Malformed JSON is an error;
// a well-formed message with an unrecognized type decodes to the Unknown
// variant so callers can log and move on.
func Decode(data []byte) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, fmt.Errorf("decode status event: %w", err)
	}

	event := Event{Type: EventType(wire.Type), Trigger: wire.Trigger, Reason: wire.Reason}
	if wire.SummaryTriggered != nil {
		event.SummaryTriggered = *wire.SummaryTriggered
	}
	if !knownWireTypes[event.Type] {
		event = Event{Type: EventUnknown, RawType: wire.Type}
	}
	return event, nil
}
