package quorum

import "github.com/google/uuid"

// Opaque string keys for the coordination units. A key is stable for the
// lifetime of the entity it names and is never reused for a different one.

type RoomID string

func NewRoomID() RoomID {
	return RoomID(uuid.Must(uuid.NewRandom()).String())
}

func (id RoomID) String() string {
	return string(id)
}

type PlayerID string

func (id PlayerID) String() string {
	return string(id)
}

type QueueID string

func NewQueueID() QueueID {
	return QueueID(uuid.Must(uuid.NewRandom()).String())
}

func (id QueueID) String() string {
	return string(id)
}

type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.Must(uuid.NewRandom()).String())
}

func (id RequestID) String() string {
	return string(id)
}

type MessageID string

func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewRandom()).String())
}

func (id MessageID) String() string {
	return string(id)
}

type SubscriberID string

func (id SubscriberID) String() string {
	return string(id)
}

type SubscriptionID string

func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.Must(uuid.NewRandom()).String())
}

func (id SubscriptionID) String() string {
	return string(id)
}
