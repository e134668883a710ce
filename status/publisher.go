package status

import "sync"

// Publisher wraps a Broker with phase-guard helpers. Producers enter a phase
// and receive a release function whose single invocation publishes the
// terminating event, so the pair stays matched on every exit path:
//
//	done := publisher.BeginThinking(conversationID, status.TriggerUserMessage)
//	defer done()
type Publisher struct {
	broker *Broker
}

// NewPublisher creates a Publisher over the given broker.
func NewPublisher(broker *Broker) *Publisher {
	return &Publisher{broker: broker}
}

// BeginThinking publishes thinking_start and returns a release that
// publishes thinking_end. The release fires at most once.
func (p *Publisher) BeginThinking(conversationID string, trigger Trigger) func() {
	p.broker.Publish(conversationID, Event{Type: EventThinkingStart, Trigger: trigger})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.broker.Publish(conversationID, Event{Type: EventThinkingEnd})
		})
	}
}

// BeginExtraction publishes extraction_start and returns a release that
// publishes extraction_complete with the batch's summary-trigger result. The
// release fires at most once; later calls are ignored.
func (p *Publisher) BeginExtraction(conversationID string) func(summaryTriggered bool) {
	p.broker.Publish(conversationID, Event{Type: EventExtractionStart})

	var once sync.Once
	return func(summaryTriggered bool) {
		once.Do(func() {
			p.broker.Publish(conversationID, Event{
				Type:             EventExtractionComplete,
				SummaryTriggered: summaryTriggered,
			})
		})
	}
}

// SummaryComplete publishes summary_complete. Called once by the summary job
// after the artifact is stored.
func (p *Publisher) SummaryComplete(conversationID string) {
	p.broker.Publish(conversationID, Event{Type: EventSummaryComplete})
}
