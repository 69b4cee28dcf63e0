package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/clipline/internal/models"
)

type fakeMsg struct {
	jetstream.Msg
	data []byte
	meta jetstream.MsgMetadata

	acked  int
	naked  int
	termed int
}

func (m *fakeMsg) Data() []byte                         { return m.data }
func (m *fakeMsg) Ack() error                           { m.acked++; return nil }
func (m *fakeMsg) Nak() error                           { m.naked++; return nil }
func (m *fakeMsg) Term() error                          { m.termed++; return nil }
func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &m.meta, nil
}

type fakeDLQ struct {
	letters []models.DeadLetter
	err     error
}

func (f *fakeDLQ) PublishDeadLetter(_ context.Context, dl models.DeadLetter) error {
	if f.err != nil {
		return f.err
	}
	f.letters = append(f.letters, dl)
	return nil
}

func jobMsg(t *testing.T, delivered uint64) *fakeMsg {
	t.Helper()
	data, err := json.Marshal(models.QueueMessage{
		ProcessRequest: models.ProcessRequest{
			SourceID:   "src-1",
			VideoKey:   "videos/src-1.mp4",
			WebhookURL: "https://app.example/webhook",
		},
		VideoURL:     "https://signed.example/videos/src-1.mp4",
		SubmittedAt:  time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UseStreaming: false,
	})
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return &fakeMsg{data: data, meta: jetstream.MsgMetadata{NumDelivered: delivered}}
}

func TestProcessSuccessAcks(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{dlq: dlq}
	msg := jobMsg(t, 1)

	c.process(context.Background(), msg, func(context.Context, models.QueueMessage) error {
		return nil
	}, 0)

	if msg.acked != 1 || msg.naked != 0 {
		t.Errorf("acked=%d naked=%d, want ack only", msg.acked, msg.naked)
	}
	if len(dlq.letters) != 0 {
		t.Error("successful job was dead-lettered")
	}
}

func TestProcessFailureBelowCeilingNaks(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{dlq: dlq}

	for _, delivered := range []uint64{1, 2} {
		msg := jobMsg(t, delivered)
		c.process(context.Background(), msg, func(context.Context, models.QueueMessage) error {
			return errors.New("container busy")
		}, 0)

		if msg.naked != 1 || msg.acked != 0 {
			t.Errorf("delivery %d: naked=%d acked=%d, want nak only", delivered, msg.naked, msg.acked)
		}
	}
	if len(dlq.letters) != 0 {
		t.Errorf("dead-lettered %d jobs before exhausting retries", len(dlq.letters))
	}
}

func TestProcessThirdFailureDeadLettersOnce(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{dlq: dlq}
	msg := jobMsg(t, MaxDeliver)

	c.process(context.Background(), msg, func(context.Context, models.QueueMessage) error {
		return errors.New("container unavailable")
	}, 0)

	if len(dlq.letters) != 1 {
		t.Fatalf("dead-lettered %d times, want exactly 1", len(dlq.letters))
	}
	if msg.acked != 1 || msg.naked != 0 {
		t.Errorf("acked=%d naked=%d, want ack to stop redelivery", msg.acked, msg.naked)
	}

	dl := dlq.letters[0]
	if dl.Message.SourceID != "src-1" || dl.Message.VideoURL == "" {
		t.Errorf("dead letter lost the original payload: %+v", dl.Message)
	}
	if dl.Error != "container unavailable" {
		t.Errorf("dead letter error = %q", dl.Error)
	}
	if dl.FailedAt.IsZero() {
		t.Error("dead letter missing failure timestamp")
	}
}

func TestProcessDLQPublishFailureDoesNotAck(t *testing.T) {
	dlq := &fakeDLQ{err: errors.New("nats down")}
	c := &Consumer{dlq: dlq}
	msg := jobMsg(t, MaxDeliver)

	c.process(context.Background(), msg, func(context.Context, models.QueueMessage) error {
		return errors.New("boom")
	}, 0)

	if msg.acked != 0 {
		t.Error("acked a job whose dead letter was never stored")
	}
}

func TestProcessMalformedMessageTerminated(t *testing.T) {
	dlq := &fakeDLQ{}
	c := &Consumer{dlq: dlq}
	msg := &fakeMsg{data: []byte("not json"), meta: jetstream.MsgMetadata{NumDelivered: 1}}

	called := false
	c.process(context.Background(), msg, func(context.Context, models.QueueMessage) error {
		called = true
		return nil
	}, 0)

	if called {
		t.Error("handler invoked for malformed message")
	}
	if msg.termed != 1 {
		t.Errorf("termed=%d, want 1", msg.termed)
	}
}
