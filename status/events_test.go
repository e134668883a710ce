package status

import (
	"strings"
	"testing"
)

func TestEncode_ExtractionCompleteAlwaysCarriesFlag(t *testing.T) {
	data, err := Event{Type: EventExtractionComplete, SummaryTriggered: false}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"summary_triggered":false`) {
		t.Errorf("flag must be explicit even when false: %s", data)
	}

	data, err = Event{Type: EventExtractionComplete, SummaryTriggered: true}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"summary_triggered":true`) {
		t.Errorf("expected summary_triggered true: %s", data)
	}
}

func TestEncode_ThinkingStartCarriesTrigger(t *testing.T) {
	data, err := Event{Type: EventThinkingStart, Trigger: TriggerUserMessage}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"trigger":"user_message"`) {
		t.Errorf("missing trigger: %s", data)
	}
}

func TestDecode_KnownVariants(t *testing.T) {
	event, err := Decode([]byte(`{"type":"extraction_complete","summary_triggered":true}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if event.Type != EventExtractionComplete || !event.SummaryTriggered {
		t.Errorf("unexpected event: %+v", event)
	}

	event, err = Decode([]byte(`{"type":"thinking_start","trigger":"autonomous"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if event.Type != EventThinkingStart || event.Trigger != TriggerAutonomous {
		t.Errorf("unexpected event: %+v", event)
	}
}

func TestDecode_UnknownTypeMapsToUnknownVariant(t *testing.T) {
	event, err := Decode([]byte(`{"type":"hologram_start"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if event.Type != EventUnknown {
		t.Errorf("expected unknown variant, got %q", event.Type)
	}
	if event.RawType != "hologram_start" {
		t.Errorf("raw type not preserved: %q", event.RawType)
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
