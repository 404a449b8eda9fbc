package eventinfra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-repository-ports/event"
)

func subscribe(t *testing.T, ctx context.Context, bus *MemoryBus, topic string, fn event.MessageHandler) <-chan error {
	t.Helper()
	before := bus.Subscribers(topic)
	done := make(chan error, 1)
	go func() { done <- bus.Subscribe(ctx, topic, fn) }()
	require.Eventually(t, func() bool { return bus.Subscribers(topic) == before+1 }, time.Second, time.Millisecond)
	return done
}

func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan event.Message, 1)
	second := make(chan event.Message, 1)
	errA := subscribe(t, ctx, bus, "User.created", func(_ context.Context, m event.Message) error { first <- m; return nil })
	errB := subscribe(t, ctx, bus, "User.created", func(_ context.Context, m event.Message) error { second <- m; return nil })

	msg := event.Message{Topic: "User.created", Key: []byte(`"1"`), Value: []byte(`{"id":"1"}`)}
	require.NoError(t, bus.Publish(ctx, msg))
	require.NoError(t, bus.Publish(ctx, event.Message{Topic: "User.deleted"}))

	for _, ch := range []chan event.Message{first, second} {
		select {
		case got := <-ch:
			assert.Equal(t, msg, got)
		case <-time.After(time.Second):
			t.Fatal("message not delivered")
		}
	}

	cancel()
	assert.ErrorIs(t, <-errA, context.Canceled)
	assert.ErrorIs(t, <-errB, context.Canceled)
	assert.Equal(t, 0, bus.Subscribers("User.created"))
}

func TestMemoryBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewMemoryBus(1)
	assert.NoError(t, bus.Publish(context.Background(), event.Message{Topic: "nobody"}))
	assert.Equal(t, 0, bus.Subscribers("nobody"))
}

func TestMemoryBus_HandlerErrorStopsSubscription(t *testing.T) {
	bus := NewMemoryBus(1)
	boom := errors.New("boom")
	done := subscribe(t, context.Background(), bus, "t", func(context.Context, event.Message) error { return boom })

	require.NoError(t, bus.Publish(context.Background(), event.Message{Topic: "t"}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
	assert.Equal(t, 0, bus.Subscribers("t"))
}

func TestMemoryBus_PublishRespectsContext(t *testing.T) {
	bus := NewMemoryBus(1)
	subCtx, stop := context.WithCancel(context.Background())
	defer stop()
	block := make(chan struct{})
	defer close(block)
	subscribe(t, subCtx, bus, "slow", func(context.Context, event.Message) error {
		<-block
		return nil
	})

	// one message in flight, one buffered, the third has to wait
	require.NoError(t, bus.Publish(context.Background(), event.Message{Topic: "slow"}))
	require.NoError(t, bus.Publish(context.Background(), event.Message{Topic: "slow"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, event.Message{Topic: "slow"}), context.DeadlineExceeded)
}

func TestMemoryBus_Close(t *testing.T) {
	bus := NewMemoryBus(1)
	done := subscribe(t, context.Background(), bus, "t", func(context.Context, event.Message) error { return nil })

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop on close")
	}
	assert.ErrorIs(t, bus.Publish(context.Background(), event.Message{Topic: "t"}), ErrClosed)
	assert.ErrorIs(t, bus.Subscribe(context.Background(), "t", nil), ErrClosed)
}
