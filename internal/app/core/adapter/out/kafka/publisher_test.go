package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

type recordingWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherPublish(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisherWithWriter(w)

	oneEther, _ := domain.ParseEther("1")
	event := domain.NewWithdrawEvent(3, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), oneEther, 2)
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message got %d", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != event.ID.String() {
		t.Fatalf("expected key %s got %s", event.ID, msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "withdraw" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
	var decoded domain.Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Sequence != 3 || decoded.Amount.Cmp(oneEther) != 0 {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer to close")
	}
}
