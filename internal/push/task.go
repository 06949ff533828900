package push

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/audit"
	"github.com/smartly/bridge/internal/hub"
)

// Task is the single long-lived owner of the push pipeline: one event-bus
// subscription, one buffer, one debounce timer, one heartbeat ticker.
// Lifecycle shape (Start/Stop backed by a stopChan + sync.WaitGroup)
// mirrors a single-consumer event subscription loop.
type Task struct {
	acl        *acl.ACL
	events     hub.EventBus
	deliverer  *Deliverer
	audit      *audit.Log
	log        zerolog.Logger
	interval   time.Duration

	buf *buffer

	mu        sync.Mutex
	timerSet  bool

	unsub    hub.Unsubscribe
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewTask(a *acl.ACL, events hub.EventBus, deliverer *Deliverer, auditLog *audit.Log, interval time.Duration, log zerolog.Logger) *Task {
	if interval <= 0 {
		interval = defaultBatchInterval
	}
	return &Task{
		acl: a, events: events, deliverer: deliverer, audit: auditLog,
		log: log.With().Str("component", "push").Logger(),
		interval: interval, buf: newBuffer(), stopChan: make(chan struct{}),
	}
}

// Start subscribes to the hub's event bus and begins the heartbeat loop.
func (t *Task) Start() {
	t.unsub = t.events.Subscribe(t.onEvent)
	t.wg.Add(1)
	go t.heartbeatLoop()
}

// Stop stops the heartbeat loop, unsubscribes from the event bus, and
// flushes any pending buffer best-effort through Deliver, retries included,
// bounded by a 5-second timeout. A debounce timer that is already armed is
// not cancelled.
func (t *Task) Stop() {
	close(t.stopChan)
	t.wg.Wait()
	if t.unsub != nil {
		t.unsub()
	}

	if batch := t.buf.Swap(); batch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.deliverer.Deliver(ctx, batch); err != nil {
			t.log.Error().Err(err).Msg("final flush on shutdown failed")
		}
	}
}

func (t *Task) onEvent(ev hub.StateChangeEvent) {
	allowed, err := t.acl.IsEntityAllowed(context.Background(), ev.EntityID)
	if err != nil || !allowed {
		return
	}

	qe := QueuedEvent{
		EventType: EventStateChanged,
		EntityID:  ev.EntityID,
		OldState:  wireState(ev.Old),
		NewState:  wireState(ev.New),
		Timestamp: time.Now(),
	}

	first := t.buf.Append(qe)
	if first {
		t.armFlush()
	}
}

func (t *Task) armFlush() {
	t.mu.Lock()
	if t.timerSet {
		t.mu.Unlock()
		return
	}
	t.timerSet = true
	t.mu.Unlock()

	time.AfterFunc(t.interval, func() {
		t.mu.Lock()
		t.timerSet = false
		t.mu.Unlock()
		t.flush()
	})
}

func (t *Task) flush() {
	batch := t.buf.Swap()
	if batch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := t.deliverer.Deliver(ctx, batch); err != nil {
		t.log.Error().Err(err).Int("batch_size", len(batch)).Msg("push batch dropped")
		t.audit.Write(ctx, audit.Event{Result: "push_failed", Reason: err.Error()})
		return
	}
	t.audit.Write(ctx, audit.Event{Result: "success", Service: "push_batch"})
}

func (t *Task) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.sendHeartbeat()
		}
	}
}

// sendHeartbeat emits a solo batch; it does not touch the debounce buffer
// or timer — a heartbeat never resets the state-change debounce.
func (t *Task) sendHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	batch := []QueuedEvent{{EventType: EventHeartbeat, Timestamp: time.Now()}}
	if err := t.deliverer.Deliver(ctx, batch); err != nil {
		t.log.Warn().Err(err).Msg("heartbeat delivery failed")
	}
}
