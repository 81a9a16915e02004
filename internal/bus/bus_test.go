package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/verdant/internal/domain"
)

// await returns the next message from ch or fails after a second.
func await(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, tenantID, domain.TopicScenarioRequested, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, tenantID, domain.TopicScenarioRequested, []byte(`{"kind":"missingness"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := await(t, got)
		if msg.TenantID != tenantID || msg.Topic != domain.TopicScenarioRequested {
			t.Errorf("unexpected envelope: %+v", msg)
		}
		if string(msg.Payload) != `{"kind":"missingness"}` {
			t.Errorf("unexpected payload %s", msg.Payload)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("envelope missing ID or timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		var other atomic.Int32
		bus.Subscribe(ctx, "tenant-002", domain.TopicScenarioCompleted, func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})
		own := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, tenantID, domain.TopicScenarioCompleted, func(ctx context.Context, msg *domain.Message) error {
			own <- msg
			return nil
		})

		bus.Publish(ctx, tenantID, domain.TopicScenarioCompleted, []byte("done"))
		await(t, own)

		time.Sleep(20 * time.Millisecond)
		if other.Load() != 0 {
			t.Error("message delivered to another tenant")
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", nil); err == nil {
			t.Error("expected error for empty tenantID on publish")
		}
		if _, err := bus.Subscribe(ctx, "", "topic", nil); err == nil {
			t.Error("expected error for empty tenantID on subscribe")
		}
	})

	t.Run("UnsubscribeDetaches", func(t *testing.T) {
		var count atomic.Int32
		sub, _ := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if sub.Topic() != "unsub.topic" {
			t.Errorf("expected topic 'unsub.topic', got '%s'", sub.Topic())
		}

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		bus.Publish(ctx, tenantID, "unsub.topic", []byte("late"))

		time.Sleep(20 * time.Millisecond)
		if count.Load() != 0 {
			t.Error("handler called after unsubscribe")
		}

		bus.mu.RLock()
		_, still := bus.subscriptions[bus.makeKey(tenantID, "unsub.topic")]
		bus.mu.RUnlock()
		if still {
			t.Error("subscription still registered after unsubscribe")
		}
	})

	t.Run("PublishJSON", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, tenantID, "json.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})

		event := domain.ScenarioCompletedEvent{RunID: "run-1", TenantID: tenantID, Kind: domain.ScenarioMissingness, Status: domain.RunCompleted}
		if err := PublishJSON(ctx, bus, tenantID, "json.topic", event); err != nil {
			t.Fatalf("PublishJSON failed: %v", err)
		}

		var decoded domain.ScenarioCompletedEvent
		if err := json.Unmarshal(await(t, got).Payload, &decoded); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if decoded != event {
			t.Errorf("expected %+v, got %+v", event, decoded)
		}
	})

	t.Run("TraceContextPropagates", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		parent := trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))

		got := make(chan trace.TraceID, 1)
		bus.Subscribe(ctx, tenantID, "traced.topic", func(ctx context.Context, msg *domain.Message) error {
			got <- trace.SpanContextFromContext(ctx).TraceID()
			return nil
		})
		bus.Publish(parent, tenantID, "traced.topic", nil)

		select {
		case id := <-got:
			if id != traceID {
				t.Errorf("expected trace %s, got %s", traceID, id)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()
	bus.Subscribe(ctx, "tenant-001", domain.TopicScenarioRequested, func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "tenant-001", domain.TopicScenarioRequested, []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNATSSubject(t *testing.T) {
	b := &NATSBus{}
	if got := b.makeSubject("t1", domain.TopicScenarioRequested); got != "verdant.scenario.requested.t1" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
