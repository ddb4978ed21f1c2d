// Package ingress validates and buffers incoming interaction events. It is
// the only admission point into the engine: malformed events are rejected
// here and never buffered, and a full buffer rejects immediately instead of
// blocking the producer. Accepted events drain through workers partitioned
// by key, so one key's backlog never stalls another key's pipeline.
package ingress

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/learnpulse/adaptive-engine/internal/domain/shared"
)

// DefaultBufferSize is the bounded buffer capacity.
const DefaultBufferSize = 10000

// DefaultWorkers is the number of drain workers.
const DefaultWorkers = 4

// Sink consumes accepted events. Calls for one key arrive serialized in
// acceptance order; different keys may be consumed concurrently.
type Sink interface {
	Consume(ctx context.Context, ev shared.InteractionEvent)
}

// Config holds ingress tuning knobs.
type Config struct {
	// BufferSize is the bounded buffer capacity. Zero means
	// DefaultBufferSize.
	BufferSize int

	// Workers is the number of drain workers. Events are partitioned
	// across them by key hash. Zero means DefaultWorkers.
	Workers int
}

// DefaultConfig returns the default ingress configuration.
func DefaultConfig() Config {
	return Config{BufferSize: DefaultBufferSize, Workers: DefaultWorkers}
}

// Stats is a point-in-time view of the ingress counters. Dropped counts
// buffer-overflow rejections only; malformed events are counted separately
// because they were never admissible.
type Stats struct {
	Accepted        uint64  `json:"accepted"`
	Dropped         uint64  `json:"dropped"`
	Malformed       uint64  `json:"malformed"`
	DropRate        float64 `json:"drop_rate"`
	Utilization     float64 `json:"utilization"`
	EventsPerSecond float64 `json:"events_per_second"`
}

// Ingress is the buffered admission point for interaction events. Producers
// call Submit concurrently; a dispatcher routes accepted events to one
// drain worker per key partition, so per-key ordering downstream follows
// acceptance order while keys on different partitions proceed in parallel.
type Ingress struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger

	buf   chan shared.InteractionEvent
	parts []chan shared.InteractionEvent

	enqMu sync.Mutex
	seq   uint64

	accepted  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64

	startedAt time.Time

	closed atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an ingress feeding the given sink.
func New(cfg Config, sink Sink, logger *slog.Logger) *Ingress {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	partCap := cfg.BufferSize / cfg.Workers
	if partCap < 1 {
		partCap = 1
	}
	parts := make([]chan shared.InteractionEvent, cfg.Workers)
	for p := range parts {
		parts[p] = make(chan shared.InteractionEvent, partCap)
	}

	return &Ingress{
		cfg:       cfg,
		sink:      sink,
		logger:    logger.With("component", "ingress"),
		buf:       make(chan shared.InteractionEvent, cfg.BufferSize),
		parts:     parts,
		startedAt: time.Now(),
	}
}

// Start launches the dispatcher and the drain workers. It returns
// immediately.
func (i *Ingress) Start(ctx context.Context) {
	ctx, i.cancel = context.WithCancel(ctx)

	// Workers keep consuming through the shutdown flush, so they run on a
	// context that survives the dispatcher's cancellation.
	workerCtx := context.WithoutCancel(ctx)
	for _, part := range i.parts {
		i.wg.Add(1)
		go i.work(workerCtx, part)
	}
	i.wg.Add(1)
	go i.dispatch(ctx)

	i.logger.Info("ingress started",
		"buffer_size", i.cfg.BufferSize, "workers", len(i.parts))
}

// Submit validates and enqueues one event. It never blocks: a full buffer
// rejects with shared.ErrOverloaded and the caller must back off and retry.
// Sequence assignment and enqueue happen under one lock, so buffer order
// always matches sequence order even with racing producers for one key.
func (i *Ingress) Submit(ev shared.InteractionEvent) error {
	if i.closed.Load() {
		return shared.NewDomainError("ingress", "Submit", shared.ErrClosed, "ingress is shut down")
	}
	if err := ev.Validate(); err != nil {
		i.malformed.Add(1)
		return shared.WrapError("ingress", "Submit", shared.ErrMalformed, "event rejected", err)
	}

	i.enqMu.Lock()
	ev.Sequence = i.seq + 1
	select {
	case i.buf <- ev:
		i.seq++
		i.enqMu.Unlock()
		i.accepted.Add(1)
		return nil
	default:
		i.enqMu.Unlock()
		i.dropped.Add(1)
		return shared.NewDomainError("ingress", "Submit", shared.ErrOverloaded,
			"event buffer full, retry with backoff")
	}
}

// Stats returns the current counters.
func (i *Ingress) Stats() Stats {
	accepted := i.accepted.Load()
	dropped := i.dropped.Load()
	s := Stats{
		Accepted:    accepted,
		Dropped:     dropped,
		Malformed:   i.malformed.Load(),
		Utilization: float64(len(i.buf)) / float64(cap(i.buf)),
	}
	if total := accepted + dropped; total > 0 {
		s.DropRate = float64(dropped) / float64(total)
	}
	if elapsed := time.Since(i.startedAt).Seconds(); elapsed > 0 {
		s.EventsPerSecond = float64(accepted) / elapsed
	}
	return s
}

// Close stops accepting events and waits until the workers finish the
// buffered backlog.
func (i *Ingress) Close() {
	if !i.closed.CompareAndSwap(false, true) {
		return
	}
	if i.cancel != nil {
		i.cancel()
	}
	i.wg.Wait()
	i.logger.Info("ingress stopped",
		"accepted", i.accepted.Load(),
		"dropped", i.dropped.Load(),
		"malformed", i.malformed.Load())
}

// dispatch routes buffered events to their key's partition in acceptance
// order. On shutdown it flushes the remaining backlog into the partitions
// and then closes them, so accepted events are not lost.
func (i *Ingress) dispatch(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case ev := <-i.buf:
			i.parts[i.partitionFor(ev.Key())] <- ev
		case <-ctx.Done():
			for {
				select {
				case ev := <-i.buf:
					i.parts[i.partitionFor(ev.Key())] <- ev
				default:
					for _, part := range i.parts {
						close(part)
					}
					return
				}
			}
		}
	}
}

// work is one partition's consumer loop. It exits when the dispatcher
// closes the partition channel.
func (i *Ingress) work(ctx context.Context, part chan shared.InteractionEvent) {
	defer i.wg.Done()
	for ev := range part {
		i.sink.Consume(ctx, ev)
	}
}

func (i *Ingress) partitionFor(key shared.Key) int {
	h := fnv.New32a()
	h.Write([]byte(key.StudentID))
	h.Write([]byte{'/'})
	h.Write([]byte(key.ModuleID))
	return int(h.Sum32() % uint32(len(i.parts)))
}
