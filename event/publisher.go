// Package event publishes entity payloads to namespaced topics and runs
// consumption loops over a pluggable Transport.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/model"
	"github.com/goliatone/go-repository-ports/ports"
)

var _ ports.Events[any] = (*Publisher[any])(nil)

// Consumption outcomes reported to an Observer.
const (
	OutcomeOK           = "ok"
	OutcomeDecodeError  = "decode_error"
	OutcomeHandlerError = "handler_error"
)

// Observer is notified of published and consumed events.
type Observer interface {
	EventPublished(topic string)
	EventConsumed(topic, outcome string)
}

// Publisher pushes payloads to "{Entity}.{topic}" and decodes consumed
// messages into M.
type Publisher[M any] struct {
	transport Transport
	entity    string
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time
}

type Option func(*options)

type options struct {
	entity   string
	logger   *zap.Logger
	observer Observer
}

// WithEntity overrides the topic namespace, which defaults to the type name of M.
func WithEntity(entity string) Option {
	return func(o *options) { o.entity = entity }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithObserver(observer Observer) Option {
	return func(o *options) { o.observer = observer }
}

func NewPublisher[M any](transport Transport, opts ...Option) *Publisher[M] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.entity == "" {
		o.entity = entityName[M]()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return &Publisher[M]{
		transport: transport,
		entity:    o.entity,
		logger:    o.logger,
		observer:  o.observer,
		now:       time.Now,
	}
}

// Entity returns the topic namespace.
func (p *Publisher[M]) Entity() string {
	return p.entity
}

// Topic returns the namespaced name for topic.
func (p *Publisher[M]) Topic(topic string) string {
	return p.entity + "." + topic
}

// Push serializes payload and sends it without a key.
func (p *Publisher[M]) Push(ctx context.Context, topic string, payload any) error {
	return p.PushWithKey(ctx, topic, nil, payload)
}

// PushWithKey serializes key and payload and sends them. Payloads
// implementing model.Dumper are sent as their dump; everything else is
// encoded as JSON. A nil key is sent as no key.
func (p *Publisher[M]) PushWithKey(ctx context.Context, topic string, key, payload any) error {
	value, err := encodeValue(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", p.Topic(topic), err)
	}
	var rawKey []byte
	if key != nil {
		if rawKey, err = json.Marshal(key); err != nil {
			return fmt.Errorf("encoding %s key: %w", p.Topic(topic), err)
		}
	}

	msg := Message{Topic: p.Topic(topic), Key: rawKey, Value: value, Timestamp: p.now()}
	if err := p.transport.Publish(ctx, msg); err != nil {
		return err
	}
	if p.observer != nil {
		p.observer.EventPublished(msg.Topic)
	}
	return nil
}

// Pull consumes the namespaced topic until ctx is cancelled, decoding each
// message into M and passing it to handler. Undecodable messages and handler
// failures are logged and acknowledged. Pull returns nil on cancellation and
// the transport error otherwise.
func (p *Publisher[M]) Pull(ctx context.Context, topic string, handler ports.EventHandler[M]) error {
	if handler == nil {
		return errors.New("event: nil handler")
	}
	name := p.Topic(topic)
	logger := p.logger.With(zap.String("topic", name))

	err := p.transport.Subscribe(ctx, name, func(ctx context.Context, msg Message) error {
		var payload M
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("discarding undecodable event", zap.Error(err), zap.ByteString("key", msg.Key))
			p.consumed(name, OutcomeDecodeError)
			return nil
		}
		if err := handler(ctx, payload); err != nil {
			logger.Error("event handler failed", zap.Error(err), zap.ByteString("key", msg.Key))
			p.consumed(name, OutcomeHandlerError)
			return nil
		}
		p.consumed(name, OutcomeOK)
		return nil
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (p *Publisher[M]) consumed(topic, outcome string) {
	if p.observer != nil {
		p.observer.EventConsumed(topic, outcome)
	}
}

func encodeValue(payload any) ([]byte, error) {
	if d, ok := payload.(model.Dumper); ok {
		return json.Marshal(d.Dump())
	}
	return json.Marshal(payload)
}

func entityName[M any]() string {
	t := reflect.TypeFor[M]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
