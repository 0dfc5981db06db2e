package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/xraph/qmin"
	audithook "github.com/xraph/qmin/audit_hook"
	"github.com/xraph/qmin/envelope"
	"github.com/xraph/qmin/stream"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr("redis.internal:6380")
	if err != nil {
		t.Fatalf("splitAddr: %v", err)
	}
	if host != "redis.internal" || port != 6380 {
		t.Fatalf("got %s %d", host, port)
	}
	if _, _, err := splitAddr("no-port"); err == nil {
		t.Fatal("expected error for address without port")
	}
	if _, _, err := splitAddr("host:abc"); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(qmin.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not JSON: %v: %s", err, buf.String())
	}
	if line["msg"] != "shown" || line["k"] != "v" {
		t.Fatalf("line = %v", line)
	}
}

func TestEnqueueAndStats(t *testing.T) {
	mr := miniredis.RunT(t)

	out, err := run(t, "enqueue", "alpha", `{"some":"task"}`, "--redis", mr.Addr())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(out, "enqueued to alpha") {
		t.Fatalf("enqueue output = %q", out)
	}

	items, err := mr.List("qmin.alpha")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || !strings.Contains(items[0], `"data":{"some":"task"}`) {
		t.Fatalf("queue = %v", items)
	}

	out, err = run(t, "stats", "--redis", mr.Addr())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "alpha") {
		t.Fatalf("stats output = %q", out)
	}
}

func TestEnqueue_InvalidJSON(t *testing.T) {
	if _, err := run(t, "enqueue", "alpha", "{nope"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestEnqueue_MissingConfigFile(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := run(t, "enqueue", "alpha", "1", "--redis", mr.Addr(), "--config", "testdata/missing.yaml", "--log-level", "error")
	if err != nil {
		t.Fatalf("missing config file should fall back to defaults: %v", err)
	}
}

func TestWatch_InvalidType(t *testing.T) {
	if _, err := run(t, "watch", "--type", "exploded"); err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

func TestPrintEvent(t *testing.T) {
	env := envelope.New("alpha", []byte(`{"n":1}`))
	var buf bytes.Buffer
	printEvent(&buf, &stream.Event{
		Type:     stream.EventProcessed,
		Received: env.Enqueued().Add(1500 * time.Millisecond),
		Queue:    "alpha",
		Envelope: env,
	})
	fields := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\t")
	if len(fields) != 5 {
		t.Fatalf("fields = %q", fields)
	}
	if fields[1] != "processed" || fields[2] != "alpha" || fields[3] != "1.5s" || fields[4] != `{"n":1}` {
		t.Fatalf("fields = %q", fields)
	}

	buf.Reset()
	printEvent(&buf, &stream.Event{Type: stream.EventFailed, DecodeErr: errors.New("bad")})
	if !strings.Contains(buf.String(), "undecodable: bad") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestJSONLines(t *testing.T) {
	var buf bytes.Buffer
	rec := jsonLines(&buf)
	for _, action := range []string{audithook.ActionJobEnqueued, audithook.ActionJobFailed} {
		if err := rec.Record(context.Background(), &audithook.AuditEvent{Action: action}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var got audithook.AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Action != audithook.ActionJobFailed {
		t.Fatalf("action = %q", got.Action)
	}
}
