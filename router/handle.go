package router

import (
	"context"

	"quorum"
	"quorum/runtime"
)

// Handle addresses one router instance through the runtime.
type Handle struct {
	sys *runtime.System
	key string
}

func NewHandle(sys *runtime.System, key string) Handle {
	return Handle{sys: sys, key: key}
}

func (h Handle) invoke(ctx context.Context, turn func(r *Router) error) error {
	return h.sys.Invoke(ctx, runtime.Ref{Kind: ActorKind, Key: h.key}, func(a runtime.Actor) error {
		return turn(a.(*Router))
	})
}

func (h Handle) Subscribe(ctx context.Context, subscriberID quorum.SubscriberID, filter Filter, subscriptionID quorum.SubscriptionID) (quorum.SubscriptionID, error) {
	var id quorum.SubscriptionID
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		id, err = r.Subscribe(subscriberID, filter, subscriptionID)
		return err
	})
	return id, err
}

func (h Handle) Unsubscribe(ctx context.Context, subscriberID quorum.SubscriberID) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.Unsubscribe(subscriberID)
	})
}

func (h Handle) SendMessage(ctx context.Context, env Envelope) (SendResult, error) {
	var res SendResult
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		res, err = r.SendMessage(env)
		return err
	})
	return res, err
}

func (h Handle) SendBatchMessages(ctx context.Context, envs []Envelope) (BatchResult, error) {
	var res BatchResult
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		res, err = r.SendBatchMessages(envs)
		return err
	})
	return res, err
}

func (h Handle) AcknowledgeMessage(ctx context.Context, subscriberID quorum.SubscriberID, messageID quorum.MessageID) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.AcknowledgeMessage(subscriberID, messageID)
	})
}

func (h Handle) GetMessageHistory(ctx context.Context, count int) ([]Envelope, error) {
	var out []Envelope
	err := h.invoke(ctx, func(r *Router) error {
		out = r.GetMessageHistory(count)
		return nil
	})
	return out, err
}

func (h Handle) GetPendingMessageCount(ctx context.Context) (int, error) {
	var n int
	err := h.invoke(ctx, func(r *Router) error {
		n = r.GetPendingMessageCount()
		return nil
	})
	return n, err
}

func (h Handle) GetFailedMessages(ctx context.Context, subscriberID quorum.SubscriberID) ([]QueuedMessage, error) {
	var out []QueuedMessage
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		out, err = r.GetFailedMessages(subscriberID)
		return err
	})
	return out, err
}

func (h Handle) ClearQueue(ctx context.Context, subscriberID quorum.SubscriberID) (int, error) {
	var n int
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		n, err = r.ClearQueue(subscriberID)
		return err
	})
	return n, err
}

func (h Handle) PauseDelivery(ctx context.Context, subscriberID quorum.SubscriberID) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.PauseDelivery(subscriberID)
	})
}

func (h Handle) ResumeDelivery(ctx context.Context, subscriberID quorum.SubscriberID) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.ResumeDelivery(subscriberID)
	})
}

func (h Handle) RetryFailedMessage(ctx context.Context, messageID quorum.MessageID) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.RetryFailedMessage(messageID)
	})
}

func (h Handle) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := h.invoke(ctx, func(r *Router) error {
		stats = r.GetStats()
		return nil
	})
	return stats, err
}

func (h Handle) GetActiveSubscribers(ctx context.Context) ([]quorum.SubscriberID, error) {
	var out []quorum.SubscriberID
	err := h.invoke(ctx, func(r *Router) error {
		out = r.GetActiveSubscribers()
		return nil
	})
	return out, err
}

func (h Handle) GetSubscriberInfo(ctx context.Context, subscriberID quorum.SubscriberID) (SubscriberInfo, error) {
	var info SubscriberInfo
	err := h.invoke(ctx, func(r *Router) error {
		var err error
		info, err = r.GetSubscriberInfo(subscriberID)
		return err
	})
	return info, err
}

func (h Handle) CleanupExpiredMessages(ctx context.Context) (int, error) {
	var n int
	err := h.invoke(ctx, func(r *Router) error {
		n = r.CleanupExpiredMessages()
		return nil
	})
	return n, err
}

func (h Handle) SetConfiguration(ctx context.Context, cfg Config) error {
	return h.invoke(ctx, func(r *Router) error {
		return r.SetConfiguration(cfg)
	})
}

func (h Handle) GetConfiguration(ctx context.Context) (Config, error) {
	var cfg Config
	err := h.invoke(ctx, func(r *Router) error {
		cfg = r.GetConfiguration()
		return nil
	})
	return cfg, err
}

func (h Handle) GetHealthStatus(ctx context.Context) (Health, error) {
	var health Health
	err := h.invoke(ctx, func(r *Router) error {
		health = r.GetHealthStatus()
		return nil
	})
	return health, err
}
