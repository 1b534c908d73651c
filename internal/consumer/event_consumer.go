package consumer

import (
	"context"
	"fmt"
	"sync"

	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

// EventHandler processes one domain event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *pubsub.Event) error
}

// DefaultPatterns are the channel families that carry cache-relevant events.
var DefaultPatterns = []string{
	pubsub.Pattern(pubsub.EntityUser),
	pubsub.Pattern(pubsub.EntityRating),
}

// EventConsumer feeds events from the bus into a handler, one goroutine per
// subscribed pattern.
type EventConsumer struct {
	sub      pubsub.Subscriber
	handler  EventHandler
	patterns []string
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewEventConsumer creates a consumer for patterns. DefaultPatterns is used
// when none are given.
func NewEventConsumer(sub pubsub.Subscriber, handler EventHandler, patterns ...string) *EventConsumer {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &EventConsumer{
		sub:      sub,
		handler:  handler,
		patterns: patterns,
	}
}

// Start subscribes to every pattern and begins consuming. Consumption stops
// when ctx is cancelled. If any subscription fails, the ones already made
// are released and their loops have exited before Start returns.
func (c *EventConsumer) Start(ctx context.Context) error {
	l := pkglog.L()

	runCtx, cancel := context.WithCancel(ctx)
	subscribed := make([]string, 0, len(c.patterns))

	for _, pattern := range c.patterns {
		events, err := c.sub.SubscribePattern(runCtx, pattern)
		if err != nil {
			c.abort(ctx, cancel, subscribed)
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
		subscribed = append(subscribed, pattern)
		l.Info().Str("pattern", pattern).Msg("event consumer started")

		c.wg.Add(1)
		go c.consumeLoop(runCtx, pattern, events)
	}

	c.cancel = cancel
	return nil
}

func (c *EventConsumer) abort(ctx context.Context, cancel context.CancelFunc, subscribed []string) {
	l := pkglog.L()

	for _, pattern := range subscribed {
		if err := c.sub.Unsubscribe(ctx, pattern); err != nil {
			l.Warn().Err(err).Str("pattern", pattern).Msg("failed to unsubscribe")
		}
	}
	cancel()
	c.wg.Wait()
}

func (c *EventConsumer) consumeLoop(ctx context.Context, pattern string, events <-chan *pubsub.Event) {
	defer c.wg.Done()
	l := pkglog.L()

	for {
		select {
		case <-ctx.Done():
			l.Info().Str("pattern", pattern).Msg("event consumer shutting down")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.processEvent(context.WithoutCancel(ctx), event)
		}
	}
}

func (c *EventConsumer) processEvent(ctx context.Context, event *pubsub.Event) {
	l := pkglog.L()

	l.Debug().
		Str("event_id", event.ID).
		Str(pkglog.FieldEventType, event.Type).
		Str("entity", event.Entity()).
		Str("key", event.Key).
		Msg("received event")

	if err := c.handler.HandleEvent(ctx, event); err != nil {
		l.Error().Err(err).Str("event_id", event.ID).Str(pkglog.FieldEventType, event.Type).Msg("failed to handle event")
	}
}

// Wait blocks until every consume loop has returned.
func (c *EventConsumer) Wait() {
	c.wg.Wait()
	if c.cancel != nil {
		c.cancel()
	}
}
