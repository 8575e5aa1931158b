// Package kafka adapts the queue ports onto segmentio/kafka-go.
// The writer hashes message keys onto partitions so one entity always
// lands in one consumer lane; the reader is a consumer group member with
// manual offset commit
package kafka

import (
	"context"
	"errors"
	"time"

	kgo "github.com/segmentio/kafka-go"

	"gitpulse/internal/adapters/queue"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
)

const (
	defaultTopic        = "gitpulse.events"
	defaultGroup        = "gitpulse-aggregate"
	defaultBatchTimeout = 10 * time.Millisecond
	defaultMaxAttempts  = 3
	defaultMinBytes     = 1 << 10
	defaultMaxBytes     = 10 << 20
	defaultMaxWait      = 500 * time.Millisecond
)

// Options configures both halves; each worker builds only the half it uses
type Options struct {
	Brokers []string
	Topic   string
	GroupID string

	// writer knobs
	BatchTimeout time.Duration
	MaxAttempts  int

	// reader knobs
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
}

func (o *Options) defaults() {
	if o.Topic == "" {
		o.Topic = defaultTopic
	}
	if o.GroupID == "" {
		o.GroupID = defaultGroup
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = defaultBatchTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.MinBytes <= 0 {
		o.MinBytes = defaultMinBytes
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if o.MaxWait <= 0 {
		o.MaxWait = defaultMaxWait
	}
}

// Writer publishes with key-hash partitioning and full acks
type Writer struct {
	w   *kgo.Writer
	log logger.Logger
}

// NewWriter builds the publish half
func NewWriter(o Options) *Writer {
	o.defaults()
	log := logger.Named("kafka")
	return &Writer{
		w: &kgo.Writer{
			Addr:         kgo.TCP(o.Brokers...),
			Topic:        o.Topic,
			Balancer:     &kgo.Hash{},
			RequiredAcks: kgo.RequireAll,
			MaxAttempts:  o.MaxAttempts,
			BatchTimeout: o.BatchTimeout,
			ErrorLogger: kgo.LoggerFunc(func(msg string, args ...any) {
				log.Error().Msgf(msg, args...)
			}),
		},
		log: *log,
	}
}

// Publish writes the batch and waits for broker acknowledgement
func (w *Writer) Publish(ctx context.Context, msgs ...queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kgo.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kgo.Message{Key: m.Key, Value: m.Value, Time: m.Time}
	}
	if err := w.w.WriteMessages(ctx, out...); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "kafka publish")
	}
	return nil
}

// Close flushes and shuts the writer down
func (w *Writer) Close() error { return w.w.Close() }

// Reader is a consumer group member. Offsets are committed explicitly by
// the caller once a batch is persisted, never on fetch
type Reader struct {
	r   *kgo.Reader
	log logger.Logger
}

// NewReader builds the consume half
func NewReader(o Options) *Reader {
	o.defaults()
	log := logger.Named("kafka")
	return &Reader{
		r: kgo.NewReader(kgo.ReaderConfig{
			Brokers:  o.Brokers,
			Topic:    o.Topic,
			GroupID:  o.GroupID,
			MinBytes: o.MinBytes,
			MaxBytes: o.MaxBytes,
			MaxWait:  o.MaxWait,
			ErrorLogger: kgo.LoggerFunc(func(msg string, args ...any) {
				log.Error().Msgf(msg, args...)
			}),
		}),
		log: *log,
	}
}

// Fetch blocks for the next message without committing it
func (r *Reader) Fetch(ctx context.Context) (queue.Message, error) {
	m, err := r.r.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return queue.Message{}, err
		}
		return queue.Message{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "kafka fetch")
	}
	return queue.Message{
		Key:       m.Key,
		Value:     m.Value,
		Partition: m.Partition,
		Offset:    m.Offset,
		Time:      m.Time,
	}, nil
}

// Commit marks msgs consumed for the group
func (r *Reader) Commit(ctx context.Context, msgs ...queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	topic := r.r.Config().Topic
	out := make([]kgo.Message, len(msgs))
	for i, m := range msgs {
		out[i] = kgo.Message{Topic: topic, Partition: m.Partition, Offset: m.Offset}
	}
	if err := r.r.CommitMessages(ctx, out...); err != nil {
		return perr.Wrap(err, perr.ErrorCodeUnavailable, "kafka commit")
	}
	return nil
}

// Close leaves the group
func (r *Reader) Close() error { return r.r.Close() }
