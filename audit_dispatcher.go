package goEnroll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// sinkWriteTimeout bounds a single sink write so a stuck sink cannot wedge
// the dispatcher goroutine forever.
const sinkWriteTimeout = 5 * time.Second

// auditDispatcher decouples engine hot paths from sink latency. Emit is
// non-blocking when dropIfFull is set; dropped events are counted, never
// silently lost.
type auditDispatcher struct {
	sink       AuditSink
	queue      chan AuditEvent
	dropIfFull bool
	dropped    atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func newAuditDispatcher(sink AuditSink, bufferSize int, dropIfFull bool) *auditDispatcher {
	d := &auditDispatcher{
		sink:       sink,
		queue:      make(chan AuditEvent, bufferSize),
		dropIfFull: dropIfFull,
		done:       make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.done:
			// Drain whatever was queued before close.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()
	if err := d.sink.Write(ctx, event); err != nil {
		d.dropped.Add(1)
	}
}

// Emit queues an event. When the queue is full it either drops (and counts)
// or blocks until space frees, depending on configuration.
func (d *auditDispatcher) Emit(event AuditEvent) {
	select {
	case <-d.done:
		d.dropped.Add(1)
		return
	default:
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-d.done:
		d.dropped.Add(1)
	}
}

// Dropped reports events lost to a full queue or failing sink.
func (d *auditDispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops the dispatcher after draining queued events. Safe to call more
// than once.
func (d *auditDispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}
