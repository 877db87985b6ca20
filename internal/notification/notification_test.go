package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifierKeysByDestination(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w)

	err := n.Send(context.Background(), Message{Kind: KindDeposit, Destination: "user-1", Body: "funded", Reference: "TXN1"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "user-1" {
		t.Fatalf("unexpected key %q", w.msgs[0].Key)
	}

	var got Message
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != KindDeposit || got.Reference != "TXN1" || got.At.IsZero() {
		t.Fatalf("unexpected payload %+v", got)
	}

	if err := n.Close(); err != nil || !w.closed {
		t.Fatalf("close: %v", err)
	}
}
