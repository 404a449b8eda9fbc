package eventinfra

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/goliatone/go-repository-ports/event"
)

// DefaultKafkaGroup is used when KafkaConfig.Group is empty.
const DefaultKafkaGroup = "go-repository-ports"

// KafkaConfig configures the franz-go transport.
type KafkaConfig struct {
	Brokers  []string
	Group    string
	ClientID string
}

func (c KafkaConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
	)
}

// KafkaTransport publishes with a shared producer client and consumes each
// subscription with its own consumer group member. Offsets are committed
// after every handled poll.
type KafkaTransport struct {
	cfg      KafkaConfig
	producer *kgo.Client
	logger   *zap.Logger
}

var _ event.Transport = (*KafkaTransport)(nil)

func NewKafkaTransport(cfg KafkaConfig, logger *zap.Logger) (*KafkaTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Group == "" {
		cfg.Group = DefaultKafkaGroup
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	producer, err := kgo.NewClient(cfg.clientOpts(kgo.AllowAutoTopicCreation())...)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return &KafkaTransport{cfg: cfg, producer: producer, logger: logger}, nil
}

func (c KafkaConfig) clientOpts(extra ...kgo.Opt) []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}
	return append(opts, extra...)
}

func (k *KafkaTransport) Publish(ctx context.Context, msg event.Message) error {
	return k.producer.ProduceSync(ctx, toRecord(msg)).FirstErr()
}

// Subscribe joins the configured consumer group on topic and polls until ctx
// is cancelled. A handler error stops the loop without committing the poll.
func (k *KafkaTransport) Subscribe(ctx context.Context, topic string, fn event.MessageHandler) error {
	consumer, err := kgo.NewClient(k.cfg.clientOpts(
		kgo.ConsumerGroup(k.cfg.Group),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
	)...)
	if err != nil {
		return fmt.Errorf("creating kafka consumer: %w", err)
	}
	defer consumer.Close()

	logger := k.logger.With(zap.String("topic", topic), zap.String("group", k.cfg.Group))
	for {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, fe := range fetches.Errors() {
			if errors.Is(fe.Err, context.Canceled) {
				continue
			}
			logger.Warn("kafka fetch failed", zap.Int32("partition", fe.Partition), zap.Error(fe.Err))
		}

		var handlerErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if handlerErr == nil {
				handlerErr = fn(ctx, fromRecord(r))
			}
		})
		if handlerErr != nil {
			return handlerErr
		}
		if err := consumer.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("kafka commit failed", zap.Error(err))
		}
	}
}

func (k *KafkaTransport) Ping(ctx context.Context) error {
	return k.producer.Ping(ctx)
}

func (k *KafkaTransport) Close() error {
	k.producer.Close()
	return nil
}

func toRecord(msg event.Message) *kgo.Record {
	return &kgo.Record{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Timestamp: msg.Timestamp}
}

func fromRecord(r *kgo.Record) event.Message {
	return event.Message{Topic: r.Topic, Key: r.Key, Value: r.Value, Timestamp: r.Timestamp}
}
