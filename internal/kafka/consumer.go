package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-merch-checkout.git/internal/logging"
)

// Handler must return nil only if processing succeeded and the offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// fetcher is the slice of kafka.Reader the consume loop needs.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Consumer struct {
	r          *kafka.Reader
	workers    int
	retryDelay time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, retryDelay: time.Second}
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	return c.run(ctx, c.r, h)
}

// run shards messages by partition so one partition is always handled by the
// same worker, serially. Offsets then commit in partition order: a failed
// message blocks its shard and is retried in place, and no later offset from
// that partition can be committed past it.
func (c *Consumer) run(ctx context.Context, r fetcher, h Handler) error {
	log := logging.New("kafka-consumer")

	var wg sync.WaitGroup
	shards := make([]chan kafka.Message, c.workers)
	for i := range shards {
		shards[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				c.handleUntilCommitted(ctx, r, h, m, log)
			}
		}(shards[i])
	}
	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wg.Wait()
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case shards[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handleUntilCommitted(ctx context.Context, r fetcher, h Handler, m kafka.Message, log *slog.Logger) {
	for {
		if err := h(ctx, m); err != nil {
			log.Warn("handler retry", "partition", m.Partition, "offset", m.Offset, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			// the group coordinator will hand the uncommitted range back out
			log.Warn("commit failed", "partition", m.Partition, "offset", m.Offset, "err", err)
		}
		return
	}
}
