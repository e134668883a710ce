// Package client implements the reconnecting status subscriber used by
// viewer sessions: it keeps a live connection to a conversation's status
// channel, reconnects with bounded exponential backoff, sends keepalive
// pings, tracks local processing-phase flags, and self-heals flags whose
// terminating event never arrives.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danfors/topicd/config"
	"github.com/danfors/topicd/status"
)

// EventHandler is the routing extension point: every event the client
// delivers — received or synthesized — goes through each registered handler.
type EventHandler interface {
	OnEvent(event status.Event)
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(event status.Event)

// OnEvent implements EventHandler.
func (f EventHandlerFunc) OnEvent(event status.Event) { f(event) }

// ConnectionState is a snapshot of the client's connection and phase flags.
type ConnectionState struct {
	IsConnecting        bool
	IsConnected         bool
	ReconnectAttempts   int
	IsThinking          bool
	IsExtracting        bool
	IsSummaryGenerating bool
}

// StatusClient is a reconnecting subscriber for one viewing session. It is
// owned by its creator; there are no process-wide instances. All state
// transitions are applied by the session goroutine, so callbacks never race
// each other.
type StatusClient struct {
	dialer Dialer
	cfg    config.ClientConfig
	logger zerolog.Logger

	mu        sync.Mutex
	state     ConnectionState
	session   *session
	listeners map[int]EventHandler
	nextID    int

	// sleep waits out a reconnect delay; tests replace it to observe the
	// backoff schedule without real time passing.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a StatusClient. Zero config fields fall back to the built-in
// defaults.
func New(dialer Dialer, cfg config.ClientConfig, logger zerolog.Logger) *StatusClient {
	defaults := config.Defaults().Client
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelayMs <= 0 {
		cfg.ReconnectBaseDelayMs = defaults.ReconnectBaseDelayMs
	}
	if cfg.PingIntervalMs <= 0 {
		cfg.PingIntervalMs = defaults.PingIntervalMs
	}
	if cfg.ThinkingStaleTimeoutMs <= 0 {
		cfg.ThinkingStaleTimeoutMs = defaults.ThinkingStaleTimeoutMs
	}
	if cfg.ExtractionStaleTimeoutMs <= 0 {
		cfg.ExtractionStaleTimeoutMs = defaults.ExtractionStaleTimeoutMs
	}

	return &StatusClient{
		dialer:    dialer,
		cfg:       cfg,
		logger:    logger.With().Str("component", "status-client").Logger(),
		listeners: make(map[int]EventHandler),
		sleep:     waitFor,
	}
}

// Listen registers a handler for delivered events. The returned function
// unsubscribes; it is safe to call more than once. A handler that panics is
// logged and does not block delivery to the others.
//
// Handlers run on the session goroutine. OnEvent must not call Connect or
// Disconnect synchronously — both wait for that goroutine to finish, which
// would deadlock; dispatch to another goroutine instead.
func (c *StatusClient) Listen(handler EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Connect starts a session against one conversation's status channel. An
// existing session is torn down first; the new session starts with a fresh
// attempt counter.
func (c *StatusClient) Connect(conversationID string) {
	c.mu.Lock()
	old := c.session
	c.mu.Unlock()
	if old != nil {
		old.cancel()
		<-old.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		client:         c,
		conversationID: conversationID,
		token:          uuid.NewString(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	c.mu.Lock()
	c.session = s
	c.state = ConnectionState{IsConnecting: true}
	c.mu.Unlock()

	go s.run()
}

// Disconnect tears the current session down: timers cancelled, connection
// closed, pending phase flags synthesized shut, state back to idle.
func (c *StatusClient) Disconnect() {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s != nil {
		s.cancel()
		<-s.done
	}
}

// State returns a snapshot of the connection and phase flags.
func (c *StatusClient) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// apply mutates client state on behalf of a session. A session that has been
// superseded by a newer Connect gets false and must stop; this is the
// identity guard that makes stale timers and reconnect schedules no-ops.
func (c *StatusClient) apply(s *session, fn func(state *ConnectionState)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return false
	}
	fn(&c.state)
	return true
}

func (c *StatusClient) notify(event status.Event) {
	c.mu.Lock()
	handlers := make([]EventHandler, 0, len(c.listeners))
	for _, handler := range c.listeners {
		handlers = append(handlers, handler)
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		c.deliver(handler, event)
	}
}

func (c *StatusClient) deliver(handler EventHandler, event status.Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Listener panicked")
		}
	}()
	handler.OnEvent(event)
}

func waitFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
