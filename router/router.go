package router

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"quorum"
	"quorum/runtime"
)

// Router is the message broker actor. All state is confined to its turns.
type Router struct {
	log  *zap.Logger
	now  func() time.Time
	cfg  Config
	sink Deliverer

	subs    map[quorum.SubscriberID]*subscriber
	history []Envelope
	stats   Stats
}

func NewRouter(sink Deliverer, cfg Config) *Router {
	return &Router{
		now:  time.Now,
		cfg:  cfg.merged(DefaultConfig()),
		sink: sink,
		subs: make(map[quorum.SubscriberID]*subscriber),
	}
}

// Register installs the router actor kind on sys.
func Register(sys *runtime.System, sink Deliverer, cfg Config) {
	sys.RegisterKind(ActorKind, func(runtime.Ref) runtime.Actor {
		return NewRouter(sink, cfg)
	})
}

func (r *Router) Activate(ctx *runtime.Context) error {
	r.log = ctx.Logger()
	ctx.SetTimer("delivery", r.cfg.DeliveryInterval, func() error {
		r.deliverTick(context.Background())
		return nil
	})
	ctx.SetTimer("cleanup", r.cfg.CleanupInterval, func() error {
		r.CleanupExpiredMessages()
		return nil
	})
	return nil
}

func (r *Router) Deactivate(*runtime.Context) {}

// Subscribe is an idempotent upsert: re-subscribing replaces the filter and
// keeps the queues.
func (r *Router) Subscribe(subscriberID quorum.SubscriberID, filter Filter, subscriptionID quorum.SubscriptionID) (quorum.SubscriptionID, error) {
	if subscriberID == "" {
		return "", quorum.Validationf("subscriber id must not be empty")
	}
	if subscriptionID == "" {
		subscriptionID = quorum.NewSubscriptionID()
	}
	now := r.now()
	if sub, ok := r.subs[subscriberID]; ok {
		sub.Filter = filter
		sub.SubscriptionID = subscriptionID
		sub.LastActivityAt = now
		sub.Active = true
		return sub.SubscriptionID, nil
	}
	r.subs[subscriberID] = &subscriber{
		ID:             subscriberID,
		SubscriptionID: subscriptionID,
		Filter:         filter,
		SubscribedAt:   now,
		LastActivityAt: now,
		Active:         true,
	}
	return subscriptionID, nil
}

func (r *Router) Unsubscribe(subscriberID quorum.SubscriberID) error {
	if _, ok := r.subs[subscriberID]; !ok {
		return quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	delete(r.subs, subscriberID)
	return nil
}

// SendMessage resolves the target set by delivery mode, applies each
// candidate's filter and enqueues the message, evicting the oldest queued
// message when a subscriber's mailbox is full.
func (r *Router) SendMessage(env Envelope) (SendResult, error) {
	if env.ID == "" {
		return SendResult{}, quorum.Validationf("message id must not be empty")
	}
	if env.Sender == "" {
		return SendResult{}, quorum.Validationf("message sender must not be empty")
	}
	now := r.now()
	if !env.ExpiresAt.IsZero() && !env.ExpiresAt.After(now) {
		return SendResult{}, quorum.Validationf("message %s is already expired", env.ID)
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = now
	}

	candidates, err := r.resolve(env)
	if err != nil {
		return SendResult{}, err
	}

	recipients := 0
	for _, sub := range candidates {
		if !sub.Filter.accepts(env) {
			continue
		}
		r.enqueue(sub, env)
		recipients++
	}
	r.history = append(r.history, env)
	if n := len(r.history); n > r.cfg.HistorySize {
		r.history = r.history[n-r.cfg.HistorySize:]
	}
	r.stats.TotalSent++
	return SendResult{MessageID: env.ID, Recipients: recipients}, nil
}

func (r *Router) resolve(env Envelope) ([]*subscriber, error) {
	var out []*subscriber
	switch env.Mode {
	case Unicast:
		if len(env.Targets) == 0 {
			return nil, quorum.Validationf("unicast message %s has no targets", env.ID)
		}
		for _, id := range env.Targets {
			if sub, ok := r.subs[id]; ok && sub.Active {
				out = append(out, sub)
			}
		}
	case Multicast:
		if len(env.Targets) > 0 {
			for _, id := range env.Targets {
				if sub, ok := r.subs[id]; ok && sub.Active {
					out = append(out, sub)
				}
			}
			break
		}
		fallthrough
	case Broadcast:
		if env.RoomID == "" {
			return nil, quorum.Validationf("room-scoped message %s has no room id", env.ID)
		}
		for _, id := range r.subscriberOrder() {
			sub := r.subs[id]
			if sub.Active && sub.Filter.RoomID == env.RoomID {
				out = append(out, sub)
			}
		}
	case GlobalBroadcast:
		for _, id := range r.subscriberOrder() {
			if sub := r.subs[id]; sub.Active {
				out = append(out, sub)
			}
		}
	default:
		return nil, quorum.Validationf("unknown delivery mode %q", env.Mode)
	}
	return out, nil
}

func (r *Router) subscriberOrder() []quorum.SubscriberID {
	ids := make([]quorum.SubscriberID, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Router) enqueue(sub *subscriber, env Envelope) {
	if len(sub.queue) >= r.cfg.MaxQueueSize {
		evicted := sub.queue[0]
		evicted.Status = StatusExpired
		sub.queue = sub.queue[1:]
		r.stats.TotalEvicted++
		r.log.Warn("subscriber queue full, evicted oldest message",
			zap.String("subscriber", sub.ID.String()),
			zap.String("evicted", evicted.Envelope.ID.String()))
	}
	sub.queue = append(sub.queue, &QueuedMessage{
		SubscriberID: sub.ID,
		Envelope:     env,
		CreatedAt:    r.now(),
		Status:       StatusPending,
	})
}

// SendBatchMessages fans out each message; the batch succeeds when at
// least one message was accepted.
func (r *Router) SendBatchMessages(envs []Envelope) (BatchResult, error) {
	var res BatchResult
	var firstErr error
	for _, env := range envs {
		if _, err := r.SendMessage(env); err != nil {
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Succeeded++
	}
	if res.Succeeded == 0 && firstErr != nil {
		return res, firstErr
	}
	return res, nil
}

// AcknowledgeMessage records a delivery receipt. History is untouched.
func (r *Router) AcknowledgeMessage(subscriberID quorum.SubscriberID, messageID quorum.MessageID) error {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	if messageID == "" {
		return quorum.Validationf("message id must not be empty")
	}
	sub.LastActivityAt = r.now()
	sub.acked++
	return nil
}

func (r *Router) GetMessageHistory(count int) []Envelope {
	if count <= 0 || count > len(r.history) {
		count = len(r.history)
	}
	out := make([]Envelope, count)
	copy(out, r.history[len(r.history)-count:])
	return out
}

func (r *Router) GetPendingMessageCount() int {
	n := 0
	for _, sub := range r.subs {
		n += len(sub.queue)
	}
	return n
}

// GetFailedMessages returns the dead-letter list of one subscriber, or of
// every subscriber when subscriberID is empty.
func (r *Router) GetFailedMessages(subscriberID quorum.SubscriberID) ([]QueuedMessage, error) {
	if subscriberID != "" {
		sub, ok := r.subs[subscriberID]
		if !ok {
			return nil, quorum.NotFoundf("subscriber %s is not registered", subscriberID)
		}
		return copyMessages(sub.failed), nil
	}
	var out []QueuedMessage
	for _, id := range r.subscriberOrder() {
		out = append(out, copyMessages(r.subs[id].failed)...)
	}
	return out, nil
}

func copyMessages(msgs []*QueuedMessage) []QueuedMessage {
	out := make([]QueuedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = *m
	}
	return out
}

func (r *Router) ClearQueue(subscriberID quorum.SubscriberID) (int, error) {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return 0, quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	n := len(sub.queue)
	sub.queue = nil
	return n, nil
}

func (r *Router) PauseDelivery(subscriberID quorum.SubscriberID) error {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	sub.Paused = true
	return nil
}

func (r *Router) ResumeDelivery(subscriberID quorum.SubscriberID) error {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	sub.Paused = false
	return nil
}

func (r *Router) GetStats() Stats {
	stats := r.stats
	stats.Pending = r.GetPendingMessageCount()
	stats.Subscribers = len(r.subs)
	return stats
}

func (r *Router) GetActiveSubscribers() []quorum.SubscriberID {
	var out []quorum.SubscriberID
	for _, id := range r.subscriberOrder() {
		if r.subs[id].Active {
			out = append(out, id)
		}
	}
	return out
}

func (r *Router) GetSubscriberInfo(subscriberID quorum.SubscriberID) (SubscriberInfo, error) {
	sub, ok := r.subs[subscriberID]
	if !ok {
		return SubscriberInfo{}, quorum.NotFoundf("subscriber %s is not registered", subscriberID)
	}
	return SubscriberInfo{
		ID:             sub.ID,
		SubscriptionID: sub.SubscriptionID,
		Filter:         sub.Filter,
		SubscribedAt:   sub.SubscribedAt,
		LastActivityAt: sub.LastActivityAt,
		Active:         sub.Active,
		Paused:         sub.Paused,
		Pending:        len(sub.queue),
		Failed:         len(sub.failed),
		Delivered:      sub.delivered,
		Acknowledged:   sub.acked,
	}, nil
}

// CleanupExpiredMessages drops queued messages past their expiry or the
// configured TTL, and trims history oldest first.
func (r *Router) CleanupExpiredMessages() int {
	now := r.now()
	removed := 0
	for _, sub := range r.subs {
		queue := sub.queue[:0]
		for _, m := range sub.queue {
			expired := (!m.Envelope.ExpiresAt.IsZero() && !m.Envelope.ExpiresAt.After(now)) ||
				now.Sub(m.CreatedAt) > r.cfg.MessageTTL
			if expired {
				m.Status = StatusExpired
				r.stats.TotalExpired++
				removed++
				continue
			}
			queue = append(queue, m)
		}
		sub.queue = queue
	}
	if n := len(r.history); n > r.cfg.HistorySize {
		r.history = r.history[n-r.cfg.HistorySize:]
	}
	return removed
}

func (r *Router) SetConfiguration(cfg Config) error {
	merged := cfg.merged(r.cfg)
	if merged.MaxQueueSize < 1 {
		return quorum.Validationf("max queue size must be positive")
	}
	r.cfg = merged
	return nil
}

func (r *Router) GetConfiguration() Config {
	return r.cfg
}

// GetHealthStatus flags backpressure: pending volume over 80% of aggregate
// queue capacity, dead-letter volume over the failed threshold, and a high
// ratio of inactive subscribers.
func (r *Router) GetHealthStatus() Health {
	h := Health{Healthy: true}
	capacity := r.cfg.MaxQueueSize * len(r.subs)
	pending := r.GetPendingMessageCount()
	if capacity > 0 && pending*10 >= capacity*8 {
		h.Healthy = false
		h.Issues = append(h.Issues, "pending messages above 80% of queue capacity")
	}
	failed := 0
	inactive := 0
	for _, sub := range r.subs {
		failed += len(sub.failed)
		if !sub.Active || r.now().Sub(sub.LastActivityAt) > 2*r.cfg.MessageTTL {
			inactive++
		}
	}
	if failed > r.cfg.FailedThreshold {
		h.Healthy = false
		h.Issues = append(h.Issues, "failed messages above threshold")
	}
	if n := len(r.subs); n > 0 && inactive*2 > n {
		h.Issues = append(h.Issues, "over half of subscribers look inactive")
	}
	return h
}
