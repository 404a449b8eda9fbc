package eventinfra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-ports/event"
)

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("eventinfra: transport closed")

// DefaultBufferSize is the per subscription queue length of a MemoryBus.
const DefaultBufferSize = 64

type subscription struct {
	ch   chan event.Message
	done chan struct{}
}

// MemoryBus is an in-process Transport. Every subscriber of a topic receives
// every message published after it subscribed. Publish blocks while a
// subscriber's queue is full.
type MemoryBus struct {
	topics *xsync.MapOf[string, *xsync.MapOf[uint64, *subscription]]
	nextID atomic.Uint64
	buffer int

	closeOnce sync.Once
	closed    chan struct{}
}

var _ event.Transport = (*MemoryBus)(nil)

// NewMemoryBus returns a bus with the given queue length per subscription.
// Non-positive sizes use DefaultBufferSize.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	return &MemoryBus{
		topics: xsync.NewMapOf[string, *xsync.MapOf[uint64, *subscription]](),
		buffer: buffer,
		closed: make(chan struct{}),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, msg event.Message) error {
	if b.isClosed() {
		return ErrClosed
	}
	subs, ok := b.topics.Load(msg.Topic)
	if !ok {
		return nil
	}

	var err error
	subs.Range(func(_ uint64, sub *subscription) bool {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-b.closed:
			err = ErrClosed
		case <-ctx.Done():
			err = ctx.Err()
		}
		return err == nil
	})
	return err
}

// Subscribe delivers messages for topic until ctx is cancelled, fn fails or
// the bus is closed. It returns ctx.Err(), fn's error or nil respectively.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, fn event.MessageHandler) error {
	if b.isClosed() {
		return ErrClosed
	}
	id := b.nextID.Add(1)
	sub := &subscription{ch: make(chan event.Message, b.buffer), done: make(chan struct{})}

	subs, _ := b.topics.LoadOrCompute(topic, func() *xsync.MapOf[uint64, *subscription] {
		return xsync.NewMapOf[uint64, *subscription]()
	})
	subs.Store(id, sub)
	defer func() {
		subs.Delete(id)
		close(sub.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return nil
		case msg := <-sub.ch:
			if err := fn(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// Subscribers returns the number of active subscriptions on topic.
func (b *MemoryBus) Subscribers(topic string) int {
	subs, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	return subs.Size()
}

// Close stops every subscription. Publishing afterwards fails with ErrClosed.
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func (b *MemoryBus) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
