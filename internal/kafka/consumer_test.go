package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeFetcher struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	next    int
	commits []int64
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if f.next < len(f.msgs) {
		m := f.msgs[f.next]
		f.next++
		f.mu.Unlock()
		return m, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.commits = append(f.commits, m.Offset)
	}
	return nil
}

func (f *fakeFetcher) committed() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.commits...)
}

// A failing message must not be skipped over by the commit of a later offset
// from the same partition; it is retried in place and committed first.
func TestFailedMessageCommitsBeforeLaterOffset(t *testing.T) {
	ff := &fakeFetcher{msgs: []kafka.Message{
		{Partition: 0, Offset: 9, Value: []byte("a")},
		{Partition: 0, Offset: 10, Value: []byte("b")},
	}}
	c := &Consumer{workers: 4, retryDelay: 5 * time.Millisecond}

	var mu sync.Mutex
	attempts := map[int64]int{}
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		attempts[m.Offset]++
		n := attempts[m.Offset]
		mu.Unlock()
		if m.Offset == 9 && n < 3 {
			return errors.New("order row not landed yet")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.run(ctx, ff, h)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(ff.committed()) < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("commits never arrived, got %v", ff.committed())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got := ff.committed()
	if len(got) != 2 || got[0] != 9 || got[1] != 10 {
		t.Errorf("expected commits in offset order [9 10], got %v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts[9] != 3 {
		t.Errorf("expected 3 attempts for offset 9, got %d", attempts[9])
	}
}

// Messages on different partitions keep flowing while one partition's shard
// is stuck retrying.
func TestOtherPartitionsProgressDuringRetry(t *testing.T) {
	ff := &fakeFetcher{msgs: []kafka.Message{
		{Partition: 0, Offset: 5, Value: []byte("stuck")},
		{Partition: 1, Offset: 7, Value: []byte("fine")},
	}}
	c := &Consumer{workers: 2, retryDelay: 10 * time.Millisecond}

	h := func(_ context.Context, m kafka.Message) error {
		if m.Partition == 0 {
			return errors.New("still failing")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.run(ctx, ff, h)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(ff.committed()) == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("partition 1 never committed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got := ff.committed()
	for _, off := range got {
		if off == 5 {
			t.Error("failing offset 5 must not be committed")
		}
	}
}
