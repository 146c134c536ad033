package instrument

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives flushed batches of change events.
type Sink interface {
	Write(batch []ChangeEvent)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(batch []ChangeEvent)

func (f SinkFunc) Write(batch []ChangeEvent) { f(batch) }

// MultiSink fans every batch out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Write(batch []ChangeEvent) {
	for _, s := range m {
		s.Write(batch)
	}
}

// LogSink logs one summary line per store and action in each batch.
func LogSink(log *zap.Logger) Sink {
	return SinkFunc(func(batch []ChangeEvent) {
		type group struct{ store, action string }
		counts := make(map[group]int)
		var order []group
		for _, e := range batch {
			g := group{e.Store, e.Action}
			if counts[g] == 0 {
				order = append(order, g)
			}
			counts[g]++
		}
		for _, g := range order {
			log.Info("store changes",
				zap.String("store", g.store),
				zap.String("action", g.action),
				zap.Int("count", counts[g]),
			)
		}
	})
}

// Recorder keeps the most recent events in a fixed-size ring.
type Recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
	next   int
	full   bool
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Recorder{events: make([]ChangeEvent, capacity)}
}

func (r *Recorder) Write(batch []ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range batch {
		r.events[r.next] = e
		r.next = (r.next + 1) % len(r.events)
		if r.next == 0 {
			r.full = true
		}
	}
}

// Recent returns the recorded events, oldest first.
func (r *Recorder) Recent() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]ChangeEvent(nil), r.events[:r.next]...)
	}
	out := make([]ChangeEvent, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}
