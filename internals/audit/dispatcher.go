// Package audit buffers security events and appends them to the store in the
// background. Recording never blocks or fails an auth operation; overflow and
// write failures are surfaced on metrics instead.
package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"passkey-auth/internals/models"
	"passkey-auth/internals/store"
)

type Dispatcher struct {
	store  store.Store
	events chan models.AuditLog

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewDispatcher(st store.Store, bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	d := &Dispatcher{
		store:  st,
		events: make(chan models.AuditLog, bufferSize),
		done:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Record enqueues an event, fire-and-forget. A full buffer drops the event
// and bumps the dropped counter rather than stalling the caller.
func (d *Dispatcher) Record(event models.AuditLog) {
	select {
	case d.events <- event:
	default:
		DroppedEvents.Inc()
	}
}

// Close flushes buffered events and stops the writer.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.events:
			d.write(event)
		case <-d.done:
			// drain what's left
			for {
				select {
				case event := <-d.events:
					d.write(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) write(event models.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.AppendAudit(ctx, &event); err != nil {
		WriteErrors.Inc()
		log.Printf("audit: failed to append %s event: %v", event.EventType, err)
		return
	}
	Events.WithLabelValues(event.EventType, event.Action).Inc()
}
