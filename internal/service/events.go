package service

import (
	"context"

	pkglog "github.com/weiawesome/wes-market/pkg/log"
	"github.com/weiawesome/wes-market/pkg/pubsub"
)

// eventEmitter publishes domain events after commit. Failures are logged and
// never reach the caller. A nil publisher disables events.
type eventEmitter struct {
	pub pubsub.Publisher
}

func (e eventEmitter) emit(ctx context.Context, channel, eventType, key string, payload interface{}) {
	if e.pub == nil {
		return
	}
	l := pkglog.Ctx(ctx)

	event, err := pubsub.NewEvent(eventType, key, payload)
	if err != nil {
		l.Warn().Err(err).Str(pkglog.FieldEventType, eventType).Msg("failed to build event")
		return
	}
	if err := e.pub.Publish(ctx, channel, event); err != nil {
		l.Warn().Err(err).Str(pkglog.FieldEventType, eventType).Str("channel", channel).Msg("failed to publish event")
	}
}
