package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudspend/internal/events"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w, DefaultTopic, nil)
	ts := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	if err := p.Publish(context.Background(), events.RunCompleted{RunID: "run-42", Status: "ok", Timestamp: ts}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages", len(w.msgs))
	}
	m := w.msgs[0]
	if string(m.Key) != "run-42" || !m.Time.Equal(ts) {
		t.Fatalf("message: key %q time %v", m.Key, m.Time)
	}
	got, err := events.Decode(m.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-42" || got.Status != "ok" {
		t.Fatalf("payload: %+v", got)
	}
	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["type"] != events.RunCompletedType || headers["content-type"] != "application/json" {
		t.Fatalf("headers: %v", headers)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v closed=%v", err, w.closed)
	}
}

func TestPublishErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := newPublisher(&fakeWriter{err: boom}, "runs", nil)
	if err := p.Publish(context.Background(), events.RunCompleted{RunID: "r"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
	if err := p.Publish(context.Background(), events.RunCompleted{}); !errors.Is(err, events.ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(Config{}, nil); err == nil {
		t.Fatal("expected error without brokers")
	}
	p, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}}, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if p.topic != DefaultTopic {
		t.Fatalf("topic: %s", p.topic)
	}
	p.Close()
}
