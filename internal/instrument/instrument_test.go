package instrument

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"resource-cache/internal/metadata"
	"resource-cache/internal/store"
)

type collectSink struct {
	mu      sync.Mutex
	batches [][]ChangeEvent
}

func (c *collectSink) Write(batch []ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
}

func (c *collectSink) all() []ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ChangeEvent
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(store.NewRegistry(), &metadata.Schema{
		Name:   "item",
		Fields: []metadata.Field{{Name: "id", Kind: metadata.KindNumber}},
	})
	require.NoError(t, err)
	return st
}

func TestEventBuffer_Attach(t *testing.T) {
	sink := &collectSink{}
	// long interval so only Stop flushes
	eb := NewEventBuffer(sink, 100, 60_000)
	st := newStore(t)
	detach := eb.Attach(st)

	_, err := st.Inject(store.Record{"id": 1}, store.Record{"id": 2})
	require.NoError(t, err)
	_, err = st.RemoveByID(1)
	require.NoError(t, err)
	assert.Equal(t, 3, eb.Len())

	detach()
	_, err = st.InjectOne(store.Record{"id": 3})
	require.NoError(t, err)

	eb.Stop()
	eb.Stop()

	events := sink.all()
	require.Len(t, events, 3)
	assert.Equal(t, ActionInject, events[0].Action)
	assert.Equal(t, "item", events[0].Store)
	assert.Equal(t, []any{float64(1)}, events[0].Key)
	assert.Equal(t, ActionRemove, events[2].Action)
	assert.NotEmpty(t, events[2].ID)
}

func TestEventBuffer_FlushWhenFull(t *testing.T) {
	done := make(chan []ChangeEvent, 1)
	eb := NewEventBuffer(SinkFunc(func(b []ChangeEvent) { done <- b }), 2, 60_000)
	defer eb.Stop()

	eb.Enqueue(ChangeEvent{Store: "a"})
	eb.Enqueue(ChangeEvent{Store: "b"})

	batch := <-done
	assert.Len(t, batch, 2)
}

func TestRecorder_Ring(t *testing.T) {
	r := NewRecorder(3)
	r.Write([]ChangeEvent{{ID: "1"}, {ID: "2"}})
	assert.Len(t, r.Recent(), 2)

	r.Write([]ChangeEvent{{ID: "3"}, {ID: "4"}})
	recent := r.Recent()
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].ID)
	assert.Equal(t, "4", recent[2].ID)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	LogSink(zap.New(core)).Write([]ChangeEvent{
		{Store: "a", Action: ActionInject},
		{Store: "a", Action: ActionInject},
		{Store: "b", Action: ActionRemove},
	})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ContextMap()["count"])
	assert.Equal(t, "b", entries[1].ContextMap()["store"])
}

func TestEventHandler_List(t *testing.T) {
	r := NewRecorder(10)
	r.Write([]ChangeEvent{
		{ID: "1", Store: "a", Action: ActionInject},
		{ID: "2", Store: "b", Action: ActionInject},
		{ID: "3", Store: "a", Action: ActionRemove},
	})

	app := fiber.New()
	app.Get("/_events", NewEventHandler(r).List)

	resp, err := app.Test(httptest.NewRequest("GET", "/_events?store=a", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var out struct {
		Data []ChangeEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Data, 2)
	assert.Equal(t, "3", out.Data[0].ID)
	assert.Equal(t, "1", out.Data[1].ID)
}

type slowSink struct {
	collectSink
}

func (s *slowSink) Write(batch []ChangeEvent) {
	time.Sleep(time.Millisecond)
	s.collectSink.Write(batch)
}

func TestEventBuffer_FlushesInOrder(t *testing.T) {
	sink := &slowSink{}
	eb := NewEventBuffer(sink, 1, 1)
	defer eb.Stop()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		eb.Enqueue(ChangeEvent{Store: "item", Key: []any{i}})
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Flush()
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(sink.all()) == n }, time.Second, 5*time.Millisecond)
	for i, e := range sink.all() {
		assert.Equal(t, []any{i}, e.Key)
	}
}
