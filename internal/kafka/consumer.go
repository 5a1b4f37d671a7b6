package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-table-checkout/internal/logx"
)

const (
	defaultAttempts = 5
	defaultBackoff  = 500 * time.Millisecond
	laneBuffer      = 64
)

// Handler processes one message. A failed message is retried in place; once
// it succeeds or retries run out its offset is committed, so handlers must
// not rely on redelivery for work they could not finish.
type Handler func(ctx context.Context, m kafka.Message) error

// Permanent marks a handler error that retrying cannot fix.
func Permanent(err error) error { return backoff.Permanent(err) }

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fans messages out to workers by partition. Each partition is
// handled and committed in offset order by a single worker.
type Consumer struct {
	Attempts int
	Backoff  time.Duration

	r       Reader
	workers int
	log     *slog.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commits are synchronous
	})
	if log == nil {
		log = logx.Nop()
	}
	return newConsumer(r, workers, log.With("group", group, "topic", topic))
}

func newConsumer(r Reader, workers int, log *slog.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logx.Nop()
	}
	return &Consumer{Attempts: defaultAttempts, Backoff: defaultBackoff, r: r, workers: workers, log: log}
}

// Start consumes until ctx ends or the reader fails. A commit failure stops
// every worker; messages not yet committed are redelivered to the group.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	g, gctx := errgroup.WithContext(ctx)
	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lane := make(chan kafka.Message, laneBuffer)
		lanes[i] = lane
		g.Go(func() error { return c.work(gctx, lane, h) })
	}

	fetchErr := c.dispatch(gctx, lanes)
	for _, l := range lanes {
		close(l)
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil || errors.Is(fetchErr, context.Canceled) {
		return nil
	}
	return fetchErr
}

func (c *Consumer) dispatch(ctx context.Context, lanes []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return err
		}
		select {
		case lanes[m.Partition%len(lanes)] <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Consumer) work(ctx context.Context, lane <-chan kafka.Message, h Handler) error {
	for m := range lane {
		if ctx.Err() != nil {
			continue // drain; uncommitted messages come back to the group
		}
		c.handle(ctx, h, m)
		if ctx.Err() != nil {
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				continue
			}
			return fmt.Errorf("commit %s[%d]@%d: %w", m.Topic, m.Partition, m.Offset, err)
		}
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.Backoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	log := c.log.With("partition", m.Partition, "offset", m.Offset, "event_type", EventType(m))
	err := backoff.RetryNotify(func() error { return h(ctx, m) }, b, func(err error, wait time.Duration) {
		log.Warn("handler failed, retrying", "wait", wait, "err", err)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("handler gave up, committing past message", "err", err)
	}
}
