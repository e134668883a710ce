package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/danfors/topicd/status"
)

// session is one Connect lifetime. It owns the dial/serve/reconnect loop;
// every state change funnels through the session goroutine, so message and
// timer handling never interleave.
type session struct {
	client         *StatusClient
	conversationID string
	token          string
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
}

func (s *session) run() {
	defer close(s.done)
	defer s.teardown()

	c := s.client
	log := c.logger.With().
		Str("conversation_id", s.conversationID).
		Str("session", s.token).
		Logger()

	policy := s.newBackoff()
	for {
		if s.ctx.Err() != nil {
			return
		}

		if !c.apply(s, func(st *ConnectionState) {
			st.IsConnecting = true
			st.IsConnected = false
		}) {
			return
		}

		conn, err := c.dialer.Dial(s.ctx, s.conversationID)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("Status connection failed")
			if !s.delayReconnect(policy, log) {
				return
			}
			continue
		}

		c.apply(s, func(st *ConnectionState) {
			st.IsConnecting = false
			st.IsConnected = true
			st.ReconnectAttempts = 0
		})
		policy.Reset()
		log.Debug().Msg("Status connection established")

		s.serve(conn, log)
		conn.Close() //nolint:errcheck // Close on teardown

		if s.ctx.Err() != nil {
			return
		}

		// The UI must never stay stuck on a phase whose terminating event
		// was lost with the connection.
		s.synthesizeOpenPhases("disconnected")
		c.apply(s, func(st *ConnectionState) { st.IsConnected = false })

		if !s.delayReconnect(policy, log) {
			return
		}
	}
}

// newBackoff builds the reconnect schedule: baseDelay * 2^attempt with no
// jitter, so the default sequence is exactly 1s, 2s, 4s, 8s, 16s.
func (s *session) newBackoff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.client.cfg.ReconnectBaseDelay()
	policy.RandomizationFactor = 0
	policy.Multiplier = 2
	policy.MaxInterval = 10 * time.Minute
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

// delayReconnect waits out the next backoff interval. It returns false when
// the session should stop: attempts exhausted (after emitting the terminal
// connection_failed notification), cancelled, or superseded.
func (s *session) delayReconnect(policy *backoff.ExponentialBackOff, log zerolog.Logger) bool {
	c := s.client

	exhausted := false
	applied := c.apply(s, func(st *ConnectionState) {
		if st.ReconnectAttempts >= c.cfg.MaxReconnectAttempts {
			exhausted = true
			return
		}
		st.ReconnectAttempts++
		st.IsConnecting = false
	})
	if !applied {
		return false
	}
	if exhausted {
		log.Error().
			Int("attempts", c.cfg.MaxReconnectAttempts).
			Msg("Reconnection attempts exhausted")
		c.notify(status.Event{Type: status.EventConnectionFailed})
		return false
	}

	delay := policy.NextBackOff()
	log.Debug().Dur("delay", delay).Msg("Scheduling reconnect")
	return c.sleep(s.ctx, delay)
}

// phaseTimers holds the stale-state recovery timers for the current
// connection. A nil channel never fires, so unarmed timers cost nothing in
// the select.
type phaseTimers struct {
	thinking    *time.Timer
	thinkingC   <-chan time.Time
	extraction  *time.Timer
	extractionC <-chan time.Time
}

func (t *phaseTimers) armThinking(d time.Duration) {
	t.disarmThinking()
	t.thinking = time.NewTimer(d)
	t.thinkingC = t.thinking.C
}

func (t *phaseTimers) disarmThinking() {
	if t.thinking != nil {
		t.thinking.Stop()
		t.thinking, t.thinkingC = nil, nil
	}
}

func (t *phaseTimers) armExtraction(d time.Duration) {
	t.disarmExtraction()
	t.extraction = time.NewTimer(d)
	t.extractionC = t.extraction.C
}

func (t *phaseTimers) disarmExtraction() {
	if t.extraction != nil {
		t.extraction.Stop()
		t.extraction, t.extractionC = nil, nil
	}
}

func (t *phaseTimers) stop() {
	t.disarmThinking()
	t.disarmExtraction()
}

// serve pumps one live connection: incoming events, keepalive pings, and
// stale-phase timers, all serialized in this goroutine. It returns when the
// connection drops or the session is cancelled.
func (s *session) serve(conn Conn, log zerolog.Logger) {
	c := s.client

	readCtx, cancelRead := context.WithCancel(s.ctx)
	defer cancelRead()

	events := make(chan status.Event)
	readErr := make(chan error, 1)
	go func() {
		for {
			event, err := conn.ReadEvent(readCtx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- event:
			case <-readCtx.Done():
				return
			}
		}
	}()

	keepalive := time.NewTicker(c.cfg.PingInterval())
	defer keepalive.Stop()

	timers := &phaseTimers{}
	defer timers.stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case err := <-readErr:
			if s.ctx.Err() == nil {
				log.Warn().Err(err).Msg("Status connection lost")
			}
			return

		case event := <-events:
			s.handleEvent(event, timers, log)

		case <-keepalive.C:
			if err := conn.WriteEvent(s.ctx, status.Event{Type: status.EventPing}); err != nil {
				log.Warn().Err(err).Msg("Keepalive ping failed")
				return
			}

		case <-timers.thinkingC:
			timers.disarmThinking()
			s.forceClearPhase(status.EventThinkingEnd, log)

		case <-timers.extractionC:
			timers.disarmExtraction()
			s.forceClearPhase(status.EventExtractionComplete, log)
		}
	}
}

func (s *session) handleEvent(event status.Event, timers *phaseTimers, log zerolog.Logger) {
	c := s.client

	switch event.Type {
	case status.EventPong:
		// Keepalive answer, consumed silently.
		return

	case status.EventThinkingStart:
		c.apply(s, func(st *ConnectionState) { st.IsThinking = true })
		timers.armThinking(c.cfg.ThinkingStaleTimeout())

	case status.EventThinkingEnd:
		c.apply(s, func(st *ConnectionState) { st.IsThinking = false })
		timers.disarmThinking()

	case status.EventExtractionStart:
		c.apply(s, func(st *ConnectionState) { st.IsExtracting = true })
		timers.armExtraction(c.cfg.ExtractionStaleTimeout())

	case status.EventExtractionComplete:
		c.apply(s, func(st *ConnectionState) {
			st.IsExtracting = false
			if event.SummaryTriggered {
				st.IsSummaryGenerating = true
			}
		})
		timers.disarmExtraction()

	case status.EventSummaryComplete:
		c.apply(s, func(st *ConnectionState) { st.IsSummaryGenerating = false })

	case status.EventUnknown:
		log.Warn().Str("wire_type", event.RawType).Msg("Ignoring unknown event type")
		return
	}

	c.notify(event)
}

// forceClearPhase is the stale-state liveness guard: a phase whose
// terminating event never arrived is cleared locally and the terminating
// event synthesized so listeners observe a consistent lifecycle.
func (s *session) forceClearPhase(endType status.EventType, log zerolog.Logger) {
	c := s.client

	stale := false
	c.apply(s, func(st *ConnectionState) {
		switch endType {
		case status.EventThinkingEnd:
			stale = st.IsThinking
			st.IsThinking = false
		case status.EventExtractionComplete:
			stale = st.IsExtracting
			st.IsExtracting = false
		}
	})
	if stale {
		log.Warn().Str("event_type", string(endType)).Msg("Phase went stale, force-clearing")
		c.notify(status.Event{Type: endType, Reason: "stale_timeout"})
	}
}

// synthesizeOpenPhases emits terminating events for any phase still open,
// clearing the flags. Used on disconnect and final teardown.
func (s *session) synthesizeOpenPhases(reason string) {
	c := s.client

	var thinking, extracting bool
	c.apply(s, func(st *ConnectionState) {
		thinking, extracting = st.IsThinking, st.IsExtracting
		st.IsThinking, st.IsExtracting = false, false
	})

	if thinking {
		c.notify(status.Event{Type: status.EventThinkingEnd, Reason: reason})
	}
	if extracting {
		c.notify(status.Event{Type: status.EventExtractionComplete, Reason: reason})
	}
}

func (s *session) teardown() {
	s.synthesizeOpenPhases("disconnected")
	s.client.apply(s, func(st *ConnectionState) { *st = ConnectionState{} })

	s.client.mu.Lock()
	if s.client.session == s {
		s.client.session = nil
	}
	s.client.mu.Unlock()
}
