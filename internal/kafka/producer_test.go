package kafka

import (
	"context"
	"testing"
	"time"
)

func waitClosed(t *testing.T, p *Producer) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitClosed hung")
	}
}

func TestProducerCloseThenCancel(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "orders", 8)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Close()
	p.Close() // second close must not panic
	cancel()
	waitClosed(t, p)
}

func TestProducerCancelThenClose(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "orders", 8)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	cancel()
	p.Close()
	waitClosed(t, p)
}
