package instrument

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"resource-cache/internal/store"
)

const (
	ActionInject = "inject"
	ActionRemove = "remove"
)

// ChangeEvent records one entity entering or leaving a store.
type ChangeEvent struct {
	ID     string    `json:"id"`
	Store  string    `json:"store"`
	Action string    `json:"action"`
	Key    []any     `json:"key"`
	At     time.Time `json:"at"`
}

// EventBuffer collects change events in memory and periodically flushes
// them to a Sink in batches.
type EventBuffer struct {
	mu      sync.Mutex
	flushMu sync.Mutex // held from taking a batch until the sink returns
	events  []ChangeEvent
	sink    Sink
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewEventBuffer creates a buffer that flushes on a timer or when full.
func NewEventBuffer(sink Sink, maxSize int, flushIntervalMs int) *EventBuffer {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 100
	}
	eb := &EventBuffer{
		sink:    sink,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	eb.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go eb.run()
	return eb
}

func (eb *EventBuffer) run() {
	for {
		select {
		case <-eb.done:
			return
		case <-eb.ticker.C:
			eb.Flush()
		}
	}
}

// Attach subscribes the buffer to the store's inject and remove channels.
// The returned function detaches it.
func (eb *EventBuffer) Attach(st *store.Store) func() {
	injected := st.InjectObserver().Subscribe(func(e *store.Entity) {
		eb.Enqueue(newEvent(st.Name(), ActionInject, e))
	})
	removed := st.RemoveObserver().Subscribe(func(e *store.Entity) {
		eb.Enqueue(newEvent(st.Name(), ActionRemove, e))
	})
	return func() {
		injected.Unsubscribe()
		removed.Unsubscribe()
	}
}

func newEvent(storeName, action string, e *store.Entity) ChangeEvent {
	return ChangeEvent{
		ID:     uuid.NewString(),
		Store:  storeName,
		Action: action,
		Key:    e.Key(),
		At:     time.Now().UTC(),
	}
}

// Enqueue adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (eb *EventBuffer) Enqueue(event ChangeEvent) {
	eb.mu.Lock()
	eb.events = append(eb.events, event)
	shouldFlush := len(eb.events) >= eb.maxSize
	eb.mu.Unlock()
	if shouldFlush {
		go eb.Flush()
	}
}

// Len returns the number of buffered, unflushed events.
func (eb *EventBuffer) Len() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.events)
}

// Flush hands all buffered events to the sink as one batch. Concurrent
// flushes reach the sink one at a time, in the order they took their batch.
func (eb *EventBuffer) Flush() {
	eb.flushMu.Lock()
	defer eb.flushMu.Unlock()

	eb.mu.Lock()
	if len(eb.events) == 0 {
		eb.mu.Unlock()
		return
	}
	batch := eb.events
	eb.events = nil
	eb.mu.Unlock()

	eb.sink.Write(batch)
}

// Stop halts the background ticker and flushes remaining events.
func (eb *EventBuffer) Stop() {
	eb.once.Do(func() {
		eb.ticker.Stop()
		close(eb.done)
		eb.Flush()
	})
}
