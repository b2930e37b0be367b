package router

import (
	"context"

	"go.uber.org/zap"

	"quorum"
)

// Deliverer hands an accepted message to its transport. The router retries
// a failing deliverer up to the configured retry cap before dead-lettering.
type Deliverer interface {
	Deliver(ctx context.Context, to quorum.SubscriberID, env Envelope) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, to quorum.SubscriberID, env Envelope) error

func (f DelivererFunc) Deliver(ctx context.Context, to quorum.SubscriberID, env Envelope) error {
	return f(ctx, to, env)
}

// deliverTick attempts one delivery per eligible subscriber, bounding the
// work per tick so no subscriber starves the others.
func (r *Router) deliverTick(ctx context.Context) {
	for _, id := range r.subscriberOrder() {
		sub := r.subs[id]
		if !sub.Active || sub.Paused || len(sub.queue) == 0 {
			continue
		}
		msg := sub.queue[0]
		sub.queue = sub.queue[1:]
		r.attempt(ctx, sub, msg)
	}
}

func (r *Router) attempt(ctx context.Context, sub *subscriber, msg *QueuedMessage) {
	err := r.sink.Deliver(ctx, sub.ID, msg.Envelope)
	if err == nil {
		msg.Status = StatusDelivered
		sub.delivered++
		sub.LastActivityAt = r.now()
		r.stats.TotalDelivered++
		return
	}

	msg.RetryCount++
	if msg.RetryCount > r.cfg.MaxRetryAttempts {
		msg.Status = StatusFailed
		sub.failed = append(sub.failed, msg)
		r.stats.TotalFailed++
		r.log.Warn("message dead-lettered",
			zap.String("subscriber", sub.ID.String()),
			zap.String("message", msg.Envelope.ID.String()),
			zap.Int("retries", msg.RetryCount-1),
			zap.Error(err))
		return
	}
	sub.queue = append(sub.queue, msg)
}

// RetryFailedMessage resubmits a dead-lettered message through SendMessage
// and removes it from the failed list only when the resend is accepted.
func (r *Router) RetryFailedMessage(messageID quorum.MessageID) error {
	for _, id := range r.subscriberOrder() {
		sub := r.subs[id]
		for i, msg := range sub.failed {
			if msg.Envelope.ID != messageID {
				continue
			}
			if _, err := r.SendMessage(msg.Envelope); err != nil {
				return err
			}
			sub.failed = append(sub.failed[:i], sub.failed[i+1:]...)
			return nil
		}
	}
	return quorum.NotFoundf("message %s is not in any failed list", messageID)
}
