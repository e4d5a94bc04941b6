package goEnroll

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEngineEmitsAuditEvents(t *testing.T) {
	sink := NewChannelSink(16)
	cfg := DefaultConfig()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithUserProvider(newMockProvider()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithClientIP(WithTenantID(context.Background(), "t-9"), "203.0.113.7")
	bundle, err := engine.BeginEnrollment(ctx, "u-1")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	select {
	case event := <-sink.C:
		if event.EventType != auditEnrollmentIssued {
			t.Fatalf("event = %q, want %q", event.EventType, auditEnrollmentIssued)
		}
		if !event.Success || event.UserID != "u-1" || event.EnrollmentID != bundle.EnrollmentID {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.TenantID != "t-9" || event.IP != "203.0.113.7" {
			t.Fatalf("context fields not carried: %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestJSONWriterSinkLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	for i := 0; i < 3; i++ {
		err := sink.Write(context.Background(), AuditEvent{
			Timestamp: time.Now().UTC(),
			EventType: auditCodeVerified,
			UserID:    "u-1",
			Success:   true,
		})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d not json: %v", lines, err)
		}
		if event.EventType != auditCodeVerified {
			t.Fatalf("line %d event = %q", lines, event.EventType)
		}
		lines++
	}
	if lines != 3 {
		t.Fatalf("lines = %d, want 3", lines)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that blocks until released makes the 1-slot queue fill up.
	release := make(chan struct{})
	blocking := sinkFunc(func(ctx context.Context, _ AuditEvent) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	d := newAuditDispatcher(blocking, 1, true)

	for i := 0; i < 10; i++ {
		d.Emit(AuditEvent{EventType: auditCodeRejected})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and full queue")
	}
	close(release)
	d.Close()
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	received := make(chan AuditEvent, 16)
	d := newAuditDispatcher(sinkFunc(func(_ context.Context, e AuditEvent) error {
		received <- e
		return nil
	}), 16, false)

	for i := 0; i < 5; i++ {
		d.Emit(AuditEvent{EventType: auditEnrollmentIssued})
	}
	d.Close()

	if got := len(received); got != 5 {
		t.Fatalf("delivered = %d, want 5", got)
	}
	// Emit after close counts as a drop rather than panicking.
	d.Emit(AuditEvent{EventType: auditEnrollmentIssued})
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

type sinkFunc func(context.Context, AuditEvent) error

func (f sinkFunc) Write(ctx context.Context, e AuditEvent) error { return f(ctx, e) }

func TestNoOpSink(t *testing.T) {
	if err := (NoOpSink{}).Write(context.Background(), AuditEvent{}); err != nil {
		t.Fatalf("noop sink: %v", err)
	}
}

func TestAuditEventJSONShape(t *testing.T) {
	raw, err := json.Marshal(AuditEvent{EventType: auditTOTPDisabled, Success: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(raw)
	for _, forbidden := range []string{"user_id", "enrollment_id", "error", "meta", "ip"} {
		if strings.Contains(s, `"`+forbidden+`"`) {
			t.Errorf("empty field %q should be omitted: %s", forbidden, s)
		}
	}
}
