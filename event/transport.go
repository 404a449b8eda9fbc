package event

import (
	"context"
	"time"
)

// Message is a serialized event as it travels over a Transport.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// MessageHandler processes one delivered message. Returning nil acknowledges it.
type MessageHandler func(ctx context.Context, msg Message) error

// Transport moves messages between publishers and subscribers.
//
// Subscribe blocks, delivering messages for topic to fn until ctx is
// cancelled or the transport fails.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, topic string, fn MessageHandler) error
	Close() error
}
