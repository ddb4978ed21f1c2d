package ingress

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// recordingSink collects consumed events for inspection.
type recordingSink struct {
	mu     sync.Mutex
	events []shared.InteractionEvent
}

func (s *recordingSink) Consume(_ context.Context, ev shared.InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []shared.InteractionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shared.InteractionEvent(nil), s.events...)
}

func validEvent(id string) shared.InteractionEvent {
	return shared.InteractionEvent{
		EventID:   id,
		StudentID: "student-1",
		ModuleID:  "statistics-101",
		Type:      shared.EventTimeSpent,
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Payload:   shared.TimeSpentPayload{Seconds: 60},
	}
}

func TestSubmitAcceptsValidEvent(t *testing.T) {
	ing := New(Config{BufferSize: 4}, &recordingSink{}, nil)

	require.NoError(t, ing.Submit(validEvent("e1")))

	stats := ing.Stats()
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(0), stats.Dropped)
}

func TestSubmitRejectsMalformed(t *testing.T) {
	ing := New(Config{BufferSize: 4}, &recordingSink{}, nil)

	tests := []struct {
		name   string
		mutate func(*shared.InteractionEvent)
	}{
		{"missing event id", func(ev *shared.InteractionEvent) { ev.EventID = "" }},
		{"missing student id", func(ev *shared.InteractionEvent) { ev.StudentID = "" }},
		{"zero timestamp", func(ev *shared.InteractionEvent) { ev.Timestamp = time.Time{} }},
		{"nil payload", func(ev *shared.InteractionEvent) { ev.Payload = nil }},
		{"unknown type", func(ev *shared.InteractionEvent) { ev.Type = "telepathy" }},
		{"tag/shape mismatch", func(ev *shared.InteractionEvent) { ev.Type = shared.EventQuizSubmitted }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent("e-" + tt.name)
			tt.mutate(&ev)
			err := ing.Submit(ev)
			require.Error(t, err)
			assert.True(t, shared.IsMalformed(err))
		})
	}

	stats := ing.Stats()
	assert.Equal(t, uint64(len(tests)), stats.Malformed)
	assert.Equal(t, uint64(0), stats.Accepted, "malformed events are never buffered")
}

func TestSubmitOverflowSignaling(t *testing.T) {
	const capacity = 5
	const excess = 3
	// No Start(): nothing drains, so the buffer fills deterministically.
	ing := New(Config{BufferSize: capacity}, &recordingSink{}, nil)

	for i := 0; i < capacity; i++ {
		require.NoError(t, ing.Submit(validEvent(fmt.Sprintf("e%d", i))))
	}
	for i := 0; i < excess; i++ {
		err := ing.Submit(validEvent(fmt.Sprintf("overflow%d", i)))
		require.Error(t, err)
		assert.True(t, shared.IsOverloaded(err))
	}

	stats := ing.Stats()
	assert.Equal(t, uint64(capacity), stats.Accepted)
	assert.Equal(t, uint64(excess), stats.Dropped, "dropped counter matches the excess exactly")
	assert.InDelta(t, float64(excess)/float64(capacity+excess), stats.DropRate, 0.001)
	assert.InDelta(t, 1.0, stats.Utilization, 0.001)
}

func TestSubmitAssignsMonotonicSequence(t *testing.T) {
	sink := &recordingSink{}
	ing := New(Config{BufferSize: 16}, sink, nil)
	ing.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, ing.Submit(validEvent(fmt.Sprintf("e%d", i))))
	}
	ing.Close()

	events := sink.all()
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
	}
}

func TestCloseFlushesBacklog(t *testing.T) {
	sink := &recordingSink{}
	ing := New(Config{BufferSize: 16}, sink, nil)

	for i := 0; i < 7; i++ {
		require.NoError(t, ing.Submit(validEvent(fmt.Sprintf("e%d", i))))
	}
	ing.Start(context.Background())
	ing.Close()

	assert.Len(t, sink.all(), 7, "accepted events survive shutdown")
}

func TestSubmitAfterCloseRejects(t *testing.T) {
	ing := New(Config{BufferSize: 4}, &recordingSink{}, nil)
	ing.Start(context.Background())
	ing.Close()

	err := ing.Submit(validEvent("late"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrClosed)
}

func TestBufferOrderMatchesSequenceOrder(t *testing.T) {
	sink := &recordingSink{}
	ing := New(Config{BufferSize: 1024, Workers: 1}, sink, nil)

	const producers = 8
	const perProducer = 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = ing.Submit(validEvent(fmt.Sprintf("p%d-e%d", p, i)))
			}
		}(p)
	}
	wg.Wait()
	ing.Start(context.Background())
	ing.Close()

	events := sink.all()
	require.Len(t, events, producers*perProducer)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Sequence, events[i-1].Sequence,
			"consumption follows acceptance order even with racing producers")
	}
}

// gateSink blocks consumption for one student until released.
type gateSink struct {
	slow    string
	release chan struct{}
	done    chan string
}

func (s *gateSink) Consume(_ context.Context, ev shared.InteractionEvent) {
	if ev.StudentID == s.slow {
		<-s.release
	}
	s.done <- ev.StudentID
}

func TestSlowKeyDoesNotStallOtherKeys(t *testing.T) {
	sink := &gateSink{
		slow:    "slow-student",
		release: make(chan struct{}),
		done:    make(chan string, 4),
	}
	ing := New(Config{BufferSize: 64, Workers: 4}, sink, nil)

	slowEv := validEvent("slow-1")
	slowEv.StudentID = "slow-student"

	fastEv := validEvent("fast-1")
	for n := 0; ; n++ {
		fastEv.StudentID = fmt.Sprintf("student-%d", n)
		if ing.partitionFor(fastEv.Key()) != ing.partitionFor(slowEv.Key()) {
			break
		}
	}

	ing.Start(context.Background())
	require.NoError(t, ing.Submit(slowEv))
	require.NoError(t, ing.Submit(fastEv))

	select {
	case id := <-sink.done:
		assert.Equal(t, fastEv.StudentID, id, "an unblocked partition keeps draining")
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked key stalled the other partitions")
	}

	close(sink.release)
	ing.Close()
}

func TestSubmitConcurrentProducers(t *testing.T) {
	sink := &recordingSink{}
	ing := New(Config{BufferSize: 1024}, sink, nil)
	ing.Start(context.Background())

	const producers = 8
	const perProducer = 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = ing.Submit(validEvent(fmt.Sprintf("p%d-e%d", p, i)))
			}
		}(p)
	}
	wg.Wait()
	ing.Close()

	assert.Equal(t, uint64(producers*perProducer), ing.Stats().Accepted)
	assert.Len(t, sink.all(), producers*perProducer)

	seen := make(map[uint64]bool)
	for _, ev := range sink.all() {
		assert.False(t, seen[ev.Sequence], "sequence numbers are unique")
		seen[ev.Sequence] = true
	}
}
