package goEnroll

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// AuditEvent defines a public type used by goEnroll APIs.
//
// AuditEvent instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise. Events never carry secrets
// or codes; metadata is limited to identifiers and outcome detail.
type AuditEvent struct {
	Timestamp    time.Time         `json:"ts"`
	EventType    string            `json:"event"`
	UserID       string            `json:"user_id,omitempty"`
	TenantID     string            `json:"tenant_id,omitempty"`
	EnrollmentID string            `json:"enrollment_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Metadata     map[string]string `json:"meta,omitempty"`
}

// AuditSink defines a public type used by goEnroll APIs.
//
// AuditSink receives events from the engine's async dispatcher. Write must not
// block indefinitely; a slow sink causes drops when DropIfFull is set, or
// backpressure on engine goroutines when it is not.
type AuditSink interface {
	Write(ctx context.Context, event AuditEvent) error
}

// NoOpSink defines a public type used by goEnroll APIs.
//
// NoOpSink discards all events. It is the default when audit is enabled but
// no sink is supplied.
type NoOpSink struct{}

// Write describes the write operation and its observable behavior.
//
// Write may return an error when input validation, dependency calls, or security checks fail.
// Write does not mutate shared global state and can be used concurrently when the receiver
// and dependencies are concurrently safe.
func (NoOpSink) Write(context.Context, AuditEvent) error { return nil }

// ChannelSink defines a public type used by goEnroll APIs.
//
// ChannelSink forwards events to a caller-owned channel, mainly for tests and
// in-process consumers.
type ChannelSink struct {
	C chan AuditEvent
}

// NewChannelSink describes the new channel sink operation and its observable behavior.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{C: make(chan AuditEvent, buffer)}
}

// Write describes the write operation and its observable behavior.
//
// Write may return an error when input validation, dependency calls, or security checks fail.
func (s *ChannelSink) Write(ctx context.Context, event AuditEvent) error {
	select {
	case s.C <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JSONWriterSink defines a public type used by goEnroll APIs.
//
// JSONWriterSink writes one JSON object per line to the wrapped writer.
// Writes are serialized with a mutex so interleaved lines cannot corrupt
// the stream.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONWriterSink describes the new json writer sink operation and its observable behavior.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

// Write describes the write operation and its observable behavior.
//
// Write may return an error when input validation, dependency calls, or security checks fail.
func (s *JSONWriterSink) Write(_ context.Context, event AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(line)
	return err
}
