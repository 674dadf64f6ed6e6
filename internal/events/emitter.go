package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/straja-ai/waterlog/internal/logging"
)

// Sink consumes detection events.
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Publisher is what request handlers depend on.
type Publisher interface {
	Emit(context.Context, *Event)
}

// Metrics is a point-in-time copy of delivery counters.
type Metrics struct {
	enqueued uint64
	dropped  uint64
	success  map[string]uint64
	failure  map[string]uint64
}

func (m Metrics) Enqueued() uint64               { return m.enqueued }
func (m Metrics) Dropped() uint64                { return m.dropped }
func (m Metrics) SinkSuccess(name string) uint64 { return m.success[name] }
func (m Metrics) SinkFailure(name string) uint64 { return m.failure[name] }

// EmitterConfig controls worker and queue sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
	DeliverTimeout  time.Duration // per sink, per event
	CloseTimeout    time.Duration // per sink, on Close
}

type sinkState struct {
	Sink
	name    string
	success atomic.Uint64
	failure atomic.Uint64
}

// Emitter buffers events and delivers them to every sink off the request path.
// A full queue drops the event.
type Emitter struct {
	queue   chan *Event
	sinks   []*sinkState
	log     *logrus.Entry
	wg      sync.WaitGroup
	drain   time.Duration
	perSink time.Duration

	closeTimeout time.Duration

	enqueued atomic.Uint64
	dropped  atomic.Uint64

	// guards closed and the send on queue against close(queue)
	mu     sync.RWMutex
	closed bool
}

var _ Publisher = (*Emitter)(nil)

// NewEmitter starts background workers delivering to sinks.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = time.Second
	}

	e := &Emitter{
		queue:   make(chan *Event, cfg.QueueSize),
		log:     logging.Default().WithField("component", "events"),
		drain:   cfg.ShutdownTimeout,
		perSink: cfg.DeliverTimeout,

		closeTimeout: cfg.CloseTimeout,
	}
	for _, s := range sinks {
		e.sinks = append(e.sinks, &sinkState{Sink: s, name: s.Name()})
	}

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer e.wg.Done()
			for ev := range e.queue {
				e.fanOut(ev)
			}
		}()
	}
	return e
}

// Emit enqueues ev without blocking.
func (e *Emitter) Emit(_ context.Context, ev *Event) {
	if e == nil || ev == nil {
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.dropped.Add(1)
		return
	}
	select {
	case e.queue <- ev:
		e.enqueued.Add(1)
	default:
		e.dropped.Add(1)
	}
}

// Close stops accepting events, waits up to the shutdown timeout for queued events,
// then closes every sink. It is safe to call more than once.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(drained)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, e.drain)
	defer cancel()
	select {
	case <-drained:
	case <-waitCtx.Done():
		e.log.WithField("pending", len(e.queue)).Warn("event queue not drained before shutdown timeout")
	}

	// waitCtx may already be spent; sinks get their own budget to flush
	closeCtx, cancelClose := context.WithTimeout(context.Background(), e.closeTimeout)
	defer cancelClose()
	for _, s := range e.sinks {
		if err := s.Close(closeCtx); err != nil {
			e.log.WithError(err).WithField("sink", s.name).Warn("sink close failed")
		}
	}
}

// MetricsSnapshot copies the current counters.
func (e *Emitter) MetricsSnapshot() Metrics {
	if e == nil {
		return Metrics{}
	}
	m := Metrics{
		enqueued: e.enqueued.Load(),
		dropped:  e.dropped.Load(),
		success:  make(map[string]uint64, len(e.sinks)),
		failure:  make(map[string]uint64, len(e.sinks)),
	}
	for _, s := range e.sinks {
		m.success[s.name] += s.success.Load()
		m.failure[s.name] += s.failure.Load()
	}
	return m
}

func (e *Emitter) fanOut(ev *Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.perSink)
		err := s.Deliver(ctx, ev)
		cancel()

		if err == nil {
			s.success.Add(1)
			continue
		}
		s.failure.Add(1)
		e.log.WithError(err).WithFields(logrus.Fields{
			"sink":       s.name,
			"request_id": ev.RequestID,
		}).Warn("event delivery failed")
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, *Event) {}
