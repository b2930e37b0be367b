package router

import (
	"context"
	"sync"

	"quorum"
)

// Outbox is the in-process transport: one buffered channel per subscriber
// that a connection handler drains. Deliver fails when the subscriber's
// channel is full, which feeds the router's retry path.
type Outbox struct {
	mu    sync.RWMutex
	size  int
	boxes map[quorum.SubscriberID]chan Envelope
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 128
	}
	return &Outbox{size: size, boxes: make(map[quorum.SubscriberID]chan Envelope)}
}

// Inbox returns the subscriber's channel, creating it on first use.
func (o *Outbox) Inbox(id quorum.SubscriberID) <-chan Envelope {
	return o.box(id)
}

func (o *Outbox) box(id quorum.SubscriberID) chan Envelope {
	o.mu.RLock()
	c, ok := o.boxes[id]
	o.mu.RUnlock()
	if ok {
		return c
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.boxes[id]; ok {
		return c
	}
	c = make(chan Envelope, o.size)
	o.boxes[id] = c
	return c
}

// Close drops a subscriber's channel; a drained handler should call it
// after Unsubscribe.
func (o *Outbox) Close(id quorum.SubscriberID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.boxes[id]; ok {
		delete(o.boxes, id)
		close(c)
	}
}

func (o *Outbox) Deliver(_ context.Context, to quorum.SubscriberID, env Envelope) error {
	select {
	case o.box(to) <- env:
		return nil
	default:
		return quorum.Capacityf("outbox for %s is full", to)
	}
}
