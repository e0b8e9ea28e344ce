// Package consumer implements the per-agent polling loop: fetch undelivered
// messages since a cursor, dispatch by message type, acknowledge, advance.
package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/davisfield/switchboard/internal/models"
	"github.com/davisfield/switchboard/internal/store"
	"go.uber.org/zap"
)

// Handler processes one message. Handlers must be idempotent with respect to
// message id: at-least-once delivery means the same unacknowledged message
// can be observed more than once.
type Handler func(msg models.Message) error

// FailureReporter receives handler failures, typically the recovery engine.
type FailureReporter interface {
	ReportFailure(agent string, msg models.Message, err error)
}

// Config tunes a consumer loop.
type Config struct {
	PollInterval      time.Duration
	ReceiveLimit      int
	ProcessedSetBound int
}

// Consumer is one agent's cooperative polling loop. It is single-threaded
// for its agent identity; run one per agent.
type Consumer struct {
	agent    string
	store    *store.Store
	cfg      Config
	log      *zap.Logger
	reporter FailureReporter

	handlers   map[string]Handler
	defaultFn  Handler
	lastSeenID uint
	processed  map[uint]struct{}
}

// New creates a Consumer for agent.
func New(agent string, st *store.Store, cfg Config, log *zap.Logger) (*Consumer, error) {
	if agent == "" {
		return nil, fmt.Errorf("consumer: agent is required")
	}
	if st == nil {
		return nil, fmt.Errorf("consumer: store is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 15 * time.Second
	}
	if cfg.ReceiveLimit <= 0 {
		cfg.ReceiveLimit = 50
	}
	if cfg.ProcessedSetBound <= 0 {
		cfg.ProcessedSetBound = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		agent:     agent,
		store:     st,
		cfg:       cfg,
		log:       log.With(zap.String("agent", agent)),
		handlers:  make(map[string]Handler),
		processed: make(map[uint]struct{}),
	}, nil
}

// Handle registers a handler for a message type.
func (c *Consumer) Handle(msgType string, h Handler) {
	c.handlers[msgType] = h
}

// HandleDefault registers a fallback handler for unrouted types.
func (c *Consumer) HandleDefault(h Handler) {
	c.defaultFn = h
}

// SetFailureReporter wires handler failures to the recovery engine.
func (c *Consumer) SetFailureReporter(r FailureReporter) {
	c.reporter = r
}

// Run polls until ctx is cancelled. Handler errors and panics never stop the
// loop: they are logged and reported, and the message is still acknowledged
// so the stream keeps moving.
func (c *Consumer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.Poll(); err != nil {
			c.log.Warn("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one fetch-dispatch-acknowledge cycle.
func (c *Consumer) Poll() error {
	// Receive returns the newest rows after the cursor. A full page can
	// hide older messages beyond the limit, and advancing the cursor past
	// them would strand them behind the strictly-after boundary. Widen the
	// fetch until the whole backlog is in hand.
	limit := c.cfg.ReceiveLimit
	msgs, err := c.store.Receive(c.agent, c.lastSeenID, limit)
	if err != nil {
		return fmt.Errorf("consumer: poll %s: %w", c.agent, err)
	}
	for len(msgs) == limit {
		limit *= 2
		msgs, err = c.store.Receive(c.agent, c.lastSeenID, limit)
		if err != nil {
			return fmt.Errorf("consumer: poll %s: %w", c.agent, err)
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	// Receive returns newest first; process oldest first so the cursor
	// advances in stream order.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if _, seen := c.processed[msg.ID]; seen {
			continue
		}

		c.dispatch(msg)

		if _, err := c.store.Acknowledge(msg.ID, c.agent); err != nil {
			// Stop the batch so the cursor does not pass an unacknowledged
			// message; it will be redelivered next poll.
			c.log.Warn("acknowledge failed", zap.Uint("message_id", msg.ID), zap.Error(err))
			break
		}
		c.processed[msg.ID] = struct{}{}
		c.lastSeenID = msg.ID
	}

	// The cursor prevents re-fetching acknowledged-and-passed messages; the
	// set only covers the at-least-once redelivery window, so clearing it
	// past the bound is safe.
	if len(c.processed) > c.cfg.ProcessedSetBound {
		c.processed = make(map[uint]struct{})
	}
	return nil
}

// dispatch runs the registered handler for the message type, containing
// errors and panics.
func (c *Consumer) dispatch(msg models.Message) {
	h, ok := c.handlers[msg.Type]
	if !ok {
		h = c.defaultFn
	}
	if h == nil {
		c.log.Debug("no handler", zap.String("type", msg.Type), zap.Uint("message_id", msg.ID))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("handler panic: %v", r)
			c.log.Error("handler panicked", zap.String("type", msg.Type), zap.Uint("message_id", msg.ID), zap.Any("panic", r))
			if c.reporter != nil {
				c.reporter.ReportFailure(c.agent, msg, err)
			}
		}
	}()

	if err := h(msg); err != nil {
		c.log.Warn("handler failed", zap.String("type", msg.Type), zap.Uint("message_id", msg.ID), zap.Error(err))
		if c.reporter != nil {
			c.reporter.ReportFailure(c.agent, msg, err)
		}
	}
}

// LastSeenID returns the consumer's current cursor.
func (c *Consumer) LastSeenID() uint { return c.lastSeenID }
