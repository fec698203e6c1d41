package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-crypto-shop/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 16, zap.NewNop())
	p.Start(context.Background())

	for _, k := range []string{"a", "b", "c"} {
		if err := p.Publish(context.Background(), []byte(k), []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()
	p.WaitClosed()

	if len(w.msgs) != 3 || !w.closed {
		t.Fatalf("written %d, closed %v", len(w.msgs), w.closed)
	}
	if string(w.msgs[0].Key) != "a" {
		t.Errorf("first key = %s", w.msgs[0].Key)
	}
	if err := p.Publish(context.Background(), nil, nil); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("publish after close: %v", err)
	}
	p.Close() // idempotent
}

func TestProducerPublishHonoursContext(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, zap.NewNop())
	// not started: the second message has nowhere to go
	if err := p.Publish(context.Background(), nil, nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Publish(ctx, nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerCommitsOnlyHandledMessages(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 1}, {Offset: 2}, {Offset: 3}}}
	c := newConsumer(r, 2, zap.NewNop())
	c.backoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen int
	)
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		seen++
		if seen == 3 {
			defer cancel()
		}
		mu.Unlock()
		if m.Offset == 2 {
			return errors.New("boom")
		}
		return nil
	}
	if err := c.Start(ctx, h); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.closed {
		t.Error("reader not closed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) != 2 {
		t.Fatalf("committed = %v, want offsets 1 and 3", r.committed)
	}
	for _, off := range r.committed {
		if off == 2 {
			t.Errorf("failed message committed")
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"event_type":"OrderPaid"}`)); !errors.Is(err, ErrBadEnvelope) {
		t.Errorf("missing id: %v", err)
	}
	if _, err := DecodeEnvelope([]byte(`nope`)); !errors.Is(err, ErrBadEnvelope) {
		t.Errorf("garbage: %v", err)
	}
	b, err := Marshal(orders.Envelope{EventID: "e1", EventType: orders.EventOrderPaid, Payload: []byte(`{"order_id":"o1","user_id":7}`)})
	if err != nil {
		t.Fatal(err)
	}
	env, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatal(err)
	}
	n, err := UnwrapPayload[orders.Notice](env.Payload)
	if err != nil || n.OrderID != "o1" || n.UserID != 7 {
		t.Fatalf("notice = %+v, %v", n, err)
	}
}
