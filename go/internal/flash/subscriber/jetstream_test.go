package subscriber

import (
	"context"
	"testing"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/backend"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/nats-io/nats-server/v2/server"
)

func runJetStreamServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("server.NewServer: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatalf("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestJetStreamSourceRoundTrip(t *testing.T) {
	url := runJetStreamServer(t)

	pubConfig := backend.DefaultJetStreamConfig()
	pubConfig.URL = url
	pubConfig.MaxReconnects = 0
	pub, err := backend.NewJetStreamPublisher(pubConfig)
	if err != nil {
		t.Fatalf("NewJetStreamPublisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	cfg := DefaultJetStreamConfig()
	cfg.URL = url
	cfg.MaxReconnects = 0
	sink := &recordingSink{}
	src, err := NewJetStreamSource(cfg, sink)
	if err != nil {
		t.Fatalf("NewJetStreamSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	// Only new messages are delivered, so publish once the consumer exists.
	deadline := time.After(3 * time.Second)
	for {
		stream, err := src.js.Stream(ctx, cfg.StreamName)
		if err == nil {
			if info, err := stream.Info(ctx); err == nil && info.State.Consumers > 0 {
				break
			}
		}
		select {
		case <-deadline:
			t.Fatalf("ordered consumer never attached")
		case <-time.After(5 * time.Millisecond):
		}
	}

	publish := func(n events.Notification) {
		t.Helper()
		ev, err := events.New(n, time.Now())
		if err != nil {
			t.Fatalf("events.New: %v", err)
		}
		if err := pub.PublishEvent(ctx, ev); err != nil {
			t.Fatalf("PublishEvent: %v", err)
		}
	}

	publish(events.CountdownTick{Value: "3"})
	if _, err := src.js.Publish(ctx, events.Subject(cfg.SubjectPrefix, events.EventTypeShowNumber), []byte(`not json`)); err != nil {
		t.Fatalf("publish malformed message: %v", err)
	}
	publish(events.ShowNumber{SessionID: 4, Index: 1, Total: 1, Value: 9, RunningSum: 9})
	publish(events.SessionComplete{SessionID: 4, Numbers: []int64{9}, Sum: 9})

	got := sink.waitFor(t, 3)
	if _, ok := got[0].(events.CountdownTick); !ok {
		t.Fatalf("first event = %T", got[0])
	}
	if n, ok := got[1].(events.ShowNumber); !ok || n.Value != 9 {
		t.Fatalf("second event = %#v", got[1])
	}
	if c, ok := got[2].(events.SessionComplete); !ok || c.Sum != 9 {
		t.Fatalf("third event = %#v", got[2])
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if n := len(sink.snapshot()); n != 3 {
		t.Fatalf("delivered %d events, want 3", n)
	}
}
