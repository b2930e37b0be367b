// Package router is the per-instance message broker: subscriber
// registrations, one bounded FIFO mailbox per subscriber, bounded retry
// with dead-lettering, and a ring of recently sent messages.
package router

import (
	"time"

	"quorum"
	"quorum/runtime"
)

const ActorKind = runtime.Kind("router")

type DeliveryMode string

const (
	Unicast         DeliveryMode = "Unicast"
	Multicast       DeliveryMode = "Multicast"
	Broadcast       DeliveryMode = "Broadcast"
	GlobalBroadcast DeliveryMode = "GlobalBroadcast"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "Pending"
	StatusDelivered MessageStatus = "Delivered"
	StatusFailed    MessageStatus = "Failed"
	StatusExpired   MessageStatus = "Expired"
)

// Envelope is the wire-independent message content.
type Envelope struct {
	ID        quorum.MessageID      `json:"id"`
	Type      string                `json:"type"`
	Sender    quorum.SubscriberID   `json:"sender"`
	Mode      DeliveryMode          `json:"mode"`
	Targets   []quorum.SubscriberID `json:"targets,omitempty"`
	RoomID    quorum.RoomID         `json:"roomId,omitempty"`
	Priority  Priority              `json:"priority"`
	Payload   []byte                `json:"payload,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	ExpiresAt time.Time             `json:"expiresAt,omitempty"`
}

// Filter is a subscriber's acceptance rule: a message-type allow-list
// (empty admits all), a sender block-list and a minimum priority. RoomID
// scopes the subscriber for room-targeted modes.
type Filter struct {
	Types          []string              `json:"types,omitempty"`
	BlockedSenders []quorum.SubscriberID `json:"blockedSenders,omitempty"`
	MinPriority    Priority              `json:"minPriority"`
	RoomID         quorum.RoomID         `json:"roomId,omitempty"`
}

func (f Filter) accepts(env Envelope) bool {
	if env.Priority < f.MinPriority {
		return false
	}
	for _, s := range f.BlockedSenders {
		if s == env.Sender {
			return false
		}
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == env.Type {
			return true
		}
	}
	return false
}

// QueuedMessage is one message owned by exactly one subscriber's mailbox.
type QueuedMessage struct {
	SubscriberID quorum.SubscriberID `json:"subscriberId"`
	Envelope     Envelope            `json:"envelope"`
	CreatedAt    time.Time           `json:"createdAt"`
	RetryCount   int                 `json:"retryCount"`
	Status       MessageStatus       `json:"status"`
}

type subscriber struct {
	ID             quorum.SubscriberID
	SubscriptionID quorum.SubscriptionID
	Filter         Filter
	SubscribedAt   time.Time
	LastActivityAt time.Time
	Active         bool
	Paused         bool

	queue     []*QueuedMessage
	failed    []*QueuedMessage
	delivered uint64
	acked     uint64
}

// SubscriberInfo is the outward projection of one registration.
type SubscriberInfo struct {
	ID             quorum.SubscriberID
	SubscriptionID quorum.SubscriptionID
	Filter         Filter
	SubscribedAt   time.Time
	LastActivityAt time.Time
	Active         bool
	Paused         bool
	Pending        int
	Failed         int
	Delivered      uint64
	Acknowledged   uint64
}

type Config struct {
	MaxQueueSize     int           `json:"maxQueueSize"`
	MaxRetryAttempts int           `json:"maxRetryAttempts"`
	HistorySize      int           `json:"historySize"`
	MessageTTL       time.Duration `json:"messageTtl"`
	DeliveryInterval time.Duration `json:"deliveryInterval"`
	CleanupInterval  time.Duration `json:"cleanupInterval"`
	FailedThreshold  int           `json:"failedThreshold"`
}

func DefaultConfig() Config {
	return Config{
		MaxQueueSize:     100,
		MaxRetryAttempts: 3,
		HistorySize:      200,
		MessageTTL:       5 * time.Minute,
		DeliveryInterval: 100 * time.Millisecond,
		CleanupInterval:  time.Minute,
		FailedThreshold:  50,
	}
}

func (c Config) merged(def Config) Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = def.MaxRetryAttempts
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	if c.MessageTTL <= 0 {
		c.MessageTTL = def.MessageTTL
	}
	if c.DeliveryInterval <= 0 {
		c.DeliveryInterval = def.DeliveryInterval
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.FailedThreshold <= 0 {
		c.FailedThreshold = def.FailedThreshold
	}
	return c
}

type Stats struct {
	TotalSent      uint64 `json:"totalSent"`
	TotalDelivered uint64 `json:"totalDelivered"`
	TotalFailed    uint64 `json:"totalFailed"`
	TotalExpired   uint64 `json:"totalExpired"`
	TotalEvicted   uint64 `json:"totalEvicted"`
	Pending        int    `json:"pending"`
	Subscribers    int    `json:"subscribers"`
}

// SendResult reports the fan-out of one publish.
type SendResult struct {
	MessageID  quorum.MessageID
	Recipients int
}

// BatchResult aggregates per-message outcomes of a batch publish.
type BatchResult struct {
	Succeeded int
	Failed    int
}

type Health struct {
	Healthy bool
	Issues  []string
}
