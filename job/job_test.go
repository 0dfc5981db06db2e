package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/id"
	"github.com/xraph/qmin/job"
)

type emailPayload struct {
	To      string `json:"to" msgpack:"to"`
	Subject string `json:"subject" msgpack:"subject"`
}

func newJob(t *testing.T, codec envelope.Codec, payload any) *job.Job {
	t.Helper()
	data, err := codec.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return job.New("emailQueue", envelope.New("emailQueue", data), codec)
}

func TestNew(t *testing.T) {
	j := newJob(t, envelope.JSONCodec{}, emailPayload{To: "a@example.com"})

	if j.ID.Prefix() != id.PrefixMessage {
		t.Errorf("ID prefix = %q, want %q", j.ID.Prefix(), id.PrefixMessage)
	}
	if j.Queue != "emailQueue" {
		t.Errorf("Queue = %q", j.Queue)
	}
	if lat := j.Latency(); lat < 0 || lat > time.Second {
		t.Errorf("Latency = %v", lat)
	}
}

func TestDecode(t *testing.T) {
	for _, codec := range []envelope.Codec{envelope.JSONCodec{}, envelope.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			j := newJob(t, codec, emailPayload{To: "a@example.com", Subject: "Hello"})

			var got emailPayload
			if err := j.Decode(&got); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.To != "a@example.com" || got.Subject != "Hello" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

// webhookAck acknowledges from a callback, after Invoke returns.
type webhookAck struct{ pending chan job.Done }

func (webhookAck) Mode() job.Mode { return job.ModeAcknowledge }

func (w webhookAck) Invoke(_ context.Context, _ *job.Job, done job.Done) error {
	w.pending <- done
	return nil
}

func TestModes(t *testing.T) {
	tests := []struct {
		h        job.Handler
		mode     job.Mode
		deferred bool
	}{
		{job.FireFunc(func(context.Context, *job.Job) {}), job.ModeFireAndForget, false},
		{job.AckFunc(func(context.Context, *job.Job, job.Done) {}), job.ModeAcknowledge, true},
		{job.TaskFunc(func(context.Context, *job.Job) error { return nil }), job.ModeAcknowledge, false},
		{job.Task(func(context.Context, emailPayload) error { return nil }), job.ModeAcknowledge, false},
		{webhookAck{}, job.ModeAcknowledge, true},
	}
	for _, tt := range tests {
		if got := tt.h.Mode(); got != tt.mode {
			t.Errorf("%T.Mode() = %v, want %v", tt.h, got, tt.mode)
		}
		if got := job.Deferred(tt.h); got != tt.deferred {
			t.Errorf("Deferred(%T) = %v, want %v", tt.h, got, tt.deferred)
		}
	}
}

func TestIsNil(t *testing.T) {
	var fire job.FireFunc
	var ack job.AckFunc
	var task job.TaskFunc
	for _, h := range []job.Handler{nil, fire, ack, task} {
		if !job.IsNil(h) {
			t.Errorf("IsNil(%T) = false", h)
		}
	}

	set := []job.Handler{
		job.FireFunc(func(context.Context, *job.Job) {}),
		job.AckFunc(func(context.Context, *job.Job, job.Done) {}),
		job.TaskFunc(func(context.Context, *job.Job) error { return nil }),
		webhookAck{},
	}
	for _, h := range set {
		if job.IsNil(h) {
			t.Errorf("IsNil(%T) = true", h)
		}
	}
}

func TestTaskFunc_CallsDone(t *testing.T) {
	want := errors.New("smtp down")
	h := job.TaskFunc(func(context.Context, *job.Job) error { return want })

	var got error
	calls := 0
	err := h.Invoke(context.Background(), &job.Job{}, func(err error) {
		calls++
		got = err
	})
	if !errors.Is(err, want) {
		t.Errorf("Invoke = %v, want %v", err, want)
	}
	if calls != 1 || !errors.Is(got, want) {
		t.Errorf("done called %d times with %v", calls, got)
	}
}

func TestAckFunc_DeferredDone(t *testing.T) {
	release := make(chan job.Done, 1)
	h := job.AckFunc(func(_ context.Context, _ *job.Job, done job.Done) {
		release <- done
	})

	finished := false
	if err := h.Invoke(context.Background(), &job.Job{}, func(error) { finished = true }); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if finished {
		t.Fatal("done called before the handler released it")
	}
	(<-release)(nil)
	if !finished {
		t.Fatal("done was not called")
	}
}

func TestTask_Typed(t *testing.T) {
	var got emailPayload
	h := job.Task(func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	})

	j := newJob(t, envelope.JSONCodec{}, emailPayload{To: "alice@example.com"})
	if err := h.Invoke(context.Background(), j, func(error) {}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q", got.To)
	}
}

func TestTask_InvalidPayload(t *testing.T) {
	h := job.Task(func(context.Context, emailPayload) error {
		t.Fatal("handler should not be called with an invalid payload")
		return nil
	})

	j := job.New("q", envelope.New("q", []byte(`{invalid`)), envelope.JSONCodec{})
	if err := h.Invoke(context.Background(), j, func(error) {}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFire_DecodeError(t *testing.T) {
	var decodeErr error
	h := job.Fire(func(context.Context, emailPayload) {
		t.Fatal("handler should not be called with an invalid payload")
	}, func(_ *job.Job, err error) { decodeErr = err })

	j := job.New("q", envelope.New("q", []byte(`[1,2`)), envelope.JSONCodec{})
	_ = h.Invoke(context.Background(), j, nil)
	if decodeErr == nil {
		t.Fatal("onErr not called")
	}
}

func TestRegistry(t *testing.T) {
	r := job.NewRegistry()

	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected no handler for unregistered queue")
	}

	job.RegisterDefinition(r, job.NewDefinition("b", func(context.Context, struct{}) error { return nil }))
	r.Register("a", job.FireFunc(func(context.Context, *job.Job) {}))
	r.Register("c", job.TaskFunc(func(context.Context, *job.Job) error { return errors.New("old") }))
	r.Register("c", job.TaskFunc(func(context.Context, *job.Job) error { return errors.New("new") }))

	queues := r.Queues()
	want := []string{"a", "b", "c"}
	if len(queues) != len(want) {
		t.Fatalf("Queues = %v, want %v", queues, want)
	}
	for i := range want {
		if queues[i] != want[i] {
			t.Errorf("Queues[%d] = %q, want %q", i, queues[i], want[i])
		}
	}

	h, _ := r.Get("c")
	err := h.Invoke(context.Background(), &job.Job{}, func(error) {})
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected overwritten handler, got %v", err)
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.RegisterDefinition(r, job.NewDefinition("no-payload", func(context.Context, struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("no-payload")
	j := job.New("no-payload", envelope.New("no-payload", nil), envelope.JSONCodec{})
	if err := h.Invoke(context.Background(), j, func(error) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}
