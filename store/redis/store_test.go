package redis_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/qmin"
	"github.com/xraph/qmin/store"
	redisstore "github.com/xraph/qmin/store/redis"
)

func setupStore(t *testing.T, opts ...redisstore.Option) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, opts...), mr
}

func TestPushAndBlockingPop(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	if err := s.Push(ctx, "q.alpha", []byte("one")); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := s.Push(ctx, "q.alpha", []byte("two")); err != nil {
		t.Fatalf("Push: %v", err)
	}

	list, err := mr.List("q.alpha")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0] != "one" || list[1] != "two" {
		t.Fatalf("list = %v, want [one two]", list)
	}

	n, err := s.Len(ctx, "q.alpha")
	if err != nil || n != 2 {
		t.Fatalf("Len = %d, %v; want 2", n, err)
	}

	p, err := s.NewPopper()
	if err != nil {
		t.Fatalf("NewPopper: %v", err)
	}
	defer p.Close()

	got, err := p.BlockingPop(ctx, "q.alpha", time.Second)
	if err != nil {
		t.Fatalf("BlockingPop: %v", err)
	}
	if string(got) != "one" {
		t.Fatalf("popped %q, want %q", got, "one")
	}
}

func TestBlockingPop_TimeoutReturnsNil(t *testing.T) {
	s, _ := setupStore(t)
	p, _ := s.NewPopper()
	defer p.Close()

	got, err := p.BlockingPop(context.Background(), "q.empty", time.Second)
	if err != nil {
		t.Fatalf("BlockingPop: %v", err)
	}
	if got != nil {
		t.Fatalf("got %q, want nil", got)
	}
}

func TestBlockingPop_ClosedPopper(t *testing.T) {
	s, _ := setupStore(t)
	p, _ := s.NewPopper()
	_ = p.Close()

	_, err := p.BlockingPop(context.Background(), "q.any", time.Second)
	if !errors.Is(err, store.ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestMetaAndSets(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()

	if err := s.SetMeta(ctx, "qmeta.alpha", store.FieldLastEnqueued, 1700000000000); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if got := mr.HGet("qmeta.alpha", store.FieldLastEnqueued); got != "1700000000000" {
		t.Errorf("HGET = %q", got)
	}

	meta, err := s.Meta(ctx, "qmeta.alpha")
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta[store.FieldLastEnqueued] != "1700000000000" {
		t.Errorf("Meta = %v", meta)
	}

	if err := s.AddToSet(ctx, "qqueues", "alpha"); err != nil {
		t.Fatalf("AddToSet: %v", err)
	}
	members, err := s.Members(ctx, "qqueues")
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 1 || members[0] != "alpha" {
		t.Errorf("Members = %v", members)
	}
}

func TestPublish(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	sub := s.Client().Subscribe(ctx, "q.enqueued")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := s.Publish(ctx, "q.enqueued", []byte(`{"queueName":"alpha"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Payload != `{"queueName":"alpha"}` {
		t.Errorf("payload = %q", msg.Payload)
	}
}

func TestErrorsAreUnavailable(t *testing.T) {
	s, mr := setupStore(t)
	mr.SetError("LOADING server is loading")

	err := s.Push(context.Background(), "q.alpha", []byte("x"))
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	s, mr := setupStore(t, redisstore.WithCircuitBreaker(2, time.Minute))
	ctx := context.Background()

	mr.SetError("LOADING server is loading")
	for range 2 {
		_ = s.Push(ctx, "q.alpha", []byte("x"))
	}
	mr.SetError("")

	// The server has recovered but the breaker is open.
	err := s.Push(ctx, "q.alpha", []byte("x"))
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable from open breaker", err)
	}
	if n, _ := mr.List("q.alpha"); len(n) != 0 {
		t.Fatalf("push went through an open breaker: %v", n)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := qmin.DefaultConfig().Redis
	cfg.Password = "secret"
	cfg.DB = 3
	cfg.TLSEnabled = true
	cfg.TLSServerName = "redis.internal"

	o := redisstore.ClientOptions(cfg)
	if o.Addr != "localhost:6379" {
		t.Errorf("Addr = %q", o.Addr)
	}
	if o.Password != "secret" || o.DB != 3 {
		t.Errorf("credentials not passed through: %+v", o)
	}
	if o.TLSConfig == nil || o.TLSConfig.ServerName != "redis.internal" {
		t.Errorf("TLS config not set: %+v", o.TLSConfig)
	}
}

func TestNewFromConfig_ClosesOwnedClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := qmin.DefaultConfig().Redis
	cfg.Host = mr.Host()
	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	cfg.Port = port

	s := redisstore.NewFromConfig(cfg)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error after Close")
	}
}


func TestEnqueue_Pipelined(t *testing.T) {
	s, mr := setupStore(t)
	ctx := context.Background()
	keys := store.NewKeys("qmin")

	err := s.Enqueue(ctx, store.EnqueueWrite{
		QueuesKey: keys.Queues(),
		Queue:     "alpha",
		MetaKey:   keys.Meta("alpha"),
		At:        1700000000123,
		ListKey:   keys.Queue("alpha"),
		Item:      []byte(`{"queueName":"alpha"}`),
		Topic:     keys.Topic(store.TopicEnqueued),
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if members, _ := mr.Members("qminqueues"); len(members) != 1 || members[0] != "alpha" {
		t.Errorf("discovery set = %v", members)
	}
	if got := mr.HGet("qminmeta.alpha", "lastEnqueued"); got != "1700000000123" {
		t.Errorf("lastEnqueued = %q", got)
	}
	list, _ := mr.List("qmin.alpha")
	if len(list) != 1 || list[0] != `{"queueName":"alpha"}` {
		t.Errorf("list = %v", list)
	}
}

func TestWatch(t *testing.T) {
	s, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := s.Watch(ctx, "qmin.enqueued", "qmin.processed")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := s.Publish(context.Background(), "qmin.processed", []byte("done")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := s.Publish(context.Background(), "qmin.other", []byte("ignored")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Topic != "qmin.processed" || string(msg.Payload) != "done" {
			t.Fatalf("msg = %s %q", msg.Topic, msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		for ok {
			_, ok = <-msgs
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}
