package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/lobbysim/eventpipe/internal/events"
)

// Clock abstracts time so dedupe windows and flush behavior are
// testable without real timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Transport delivers one batch to the ingress. An error means the
// whole batch failed; partial delivery is not modeled.
type Transport interface {
	Deliver(ctx context.Context, batch []events.Envelope) error
}

// Circuit states. There is no half-open probe: while OPEN the
// publisher makes no network calls at all until an explicit Reset.
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "OPEN"
	}
	return "CLOSED"
}

// Options tunes the publisher. Zero values fall back to defaults.
type Options struct {
	FlushInterval    time.Duration // periodic flush cadence
	FlushTimeout     time.Duration // per-delivery deadline
	HighWaterMark    int           // queue length forcing an immediate flush
	QueueCapacity    int           // hard bound; beyond it envelopes are dropped
	FailureThreshold int           // consecutive failures before the circuit opens
	DedupeWindow     time.Duration // identical (type, payload) suppression window
}

func (o Options) withDefaults() Options {
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 5 * time.Second
	}
	if o.HighWaterMark <= 0 {
		o.HighWaterMark = 50
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 100
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = time.Second
	}
	return o
}

// Publisher turns an arbitrary-rate stream of envelopes into periodic,
// filtered, deduplicated, size-bounded batches, and degrades to silent
// dropping under sustained delivery failure. Publish never blocks and
// never returns an error to the producer; every failure below this
// point is absorbed here.
type Publisher struct {
	transport Transport
	clock     Clock
	logger    *slog.Logger
	opts      Options

	mu              sync.Mutex
	queue           []events.Envelope
	state           State
	failures        int
	upstreamEnabled bool
	lastAccepted    map[string]time.Time

	flushCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New builds a publisher in the CLOSED state with an empty queue.
// Upstream starts disabled; SetUpstreamEnabled(true) opens the full
// pipeline.
func New(transport Transport, clock Clock, logger *slog.Logger, opts Options) *Publisher {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		transport:    transport,
		clock:        clock,
		logger:       logger,
		opts:         opts.withDefaults(),
		lastAccepted: map[string]time.Time{},
		flushCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// SetUpstreamEnabled toggles the boot/standby filter. While false,
// only the narrow UI pass-list flows; simulation-origin envelopes are
// dropped even when their type is allow-listed, because the simulation
// keeps ticking while the feature that gives its events meaning is off.
func (p *Publisher) SetUpstreamEnabled(enabled bool) {
	p.mu.Lock()
	p.upstreamEnabled = enabled
	p.mu.Unlock()
}

// State returns the current circuit state.
func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// QueueLen returns the number of envelopes waiting for the next flush.
func (p *Publisher) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// dedupeKey identifies an envelope by content, not identity. Go maps
// marshal with sorted keys, so the serialization is canonical.
func dedupeKey(e events.Envelope) string {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		// Unserializable payloads cannot be compared; treat as unique.
		return e.Type + "|" + e.EventID
	}
	return e.Type + "|" + string(raw)
}

// Publish enqueues an envelope for the next batch, or drops it by
// policy. Dropping is not an error: the caller fires and forgets.
func (p *Publisher) Publish(envelope events.Envelope) {
	p.mu.Lock()

	if p.state == StateOpen {
		p.mu.Unlock()
		return
	}

	if !p.upstreamEnabled && !events.BootAllowed(envelope.Source, envelope.Type) {
		p.mu.Unlock()
		p.logger.Debug("envelope dropped by boot filter",
			"event", "publisher_boot_filtered",
			"module", "publisher",
			"event_type", envelope.Type,
			"source", string(envelope.Source),
		)
		return
	}

	if !events.Allowed(envelope.Type) {
		p.mu.Unlock()
		p.logger.Debug("envelope type not allow-listed",
			"event", "publisher_type_rejected",
			"module", "publisher",
			"event_type", envelope.Type,
		)
		return
	}

	now := p.clock.Now()
	key := dedupeKey(envelope)
	if seen, ok := p.lastAccepted[key]; ok && now.Sub(seen) < p.opts.DedupeWindow {
		p.mu.Unlock()
		return
	}

	if len(p.queue) >= p.opts.QueueCapacity {
		p.mu.Unlock()
		p.logger.Debug("queue at capacity, envelope dropped",
			"event", "publisher_queue_full",
			"module", "publisher",
			"event_type", envelope.Type,
		)
		return
	}
	p.lastAccepted[key] = now
	p.pruneDedupeLocked(now)
	p.queue = append(p.queue, envelope)
	hitHighWater := len(p.queue) >= p.opts.HighWaterMark
	p.mu.Unlock()

	if hitHighWater {
		p.requestFlush()
	}
}

// pruneDedupeLocked drops expired dedupe entries once the table grows
// past a working-set bound. Called with p.mu held.
func (p *Publisher) pruneDedupeLocked(now time.Time) {
	if len(p.lastAccepted) < 1024 {
		return
	}
	for key, seen := range p.lastAccepted {
		if now.Sub(seen) >= p.opts.DedupeWindow {
			delete(p.lastAccepted, key)
		}
	}
}

// requestFlush signals the run loop without blocking the producer.
func (p *Publisher) requestFlush() {
	select {
	case p.flushCh <- struct{}{}:
	default:
	}
}

// Start runs the periodic flush loop until ctx is cancelled or Close
// is called. High-water publishes trigger an out-of-band flush ahead
// of the ticker.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.opts.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				p.Flush(ctx)
			case <-p.flushCh:
				p.Flush(ctx)
			}
		}
	}()
}

// Flush attempts one delivery of everything currently queued. The
// snapshot-and-clear is atomic: envelopes published during the network
// call accumulate into a fresh queue and never race the in-flight
// batch. Returns true when a batch was delivered.
func (p *Publisher) Flush(ctx context.Context) bool {
	p.mu.Lock()
	if p.state == StateOpen || len(p.queue) == 0 {
		p.mu.Unlock()
		return false
	}
	batch := p.queue
	p.queue = nil
	p.mu.Unlock()

	deliverCtx, cancel := context.WithTimeout(ctx, p.opts.FlushTimeout)
	err := p.transport.Deliver(deliverCtx, batch)
	cancel()

	if err == nil {
		p.onFlushSuccess(len(batch))
		return true
	}
	p.onFlushFailure(batch, err)
	return false
}

func (p *Publisher) onFlushSuccess(count int) {
	p.mu.Lock()
	recovered := p.failures > 0
	p.failures = 0
	p.state = StateClosed
	p.mu.Unlock()

	if recovered {
		p.logger.Info("event delivery recovered",
			"event", "publisher_recovered",
			"module", "publisher",
			"batch_size", count,
		)
	}
}

// onFlushFailure re-queues the failed batch at the head when capacity
// allows, and opens the circuit after the failure threshold. Only the
// first failure of a streak is logged verbosely; an extended outage
// must not produce a log storm.
func (p *Publisher) onFlushFailure(batch []events.Envelope, err error) {
	p.mu.Lock()
	p.failures++
	first := p.failures == 1
	opened := false
	if p.failures >= p.opts.FailureThreshold {
		p.state = StateOpen
		p.queue = nil
		opened = true
	} else if len(batch)+len(p.queue) <= p.opts.QueueCapacity {
		p.queue = append(batch, p.queue...)
	}
	p.mu.Unlock()

	if first {
		p.logger.Error("event delivery failed",
			"event", "publisher_flush_failed",
			"module", "publisher",
			"batch_size", len(batch),
			"error", err.Error(),
		)
	}
	if opened {
		p.logger.Warn("event delivery suspended",
			"event", "publisher_circuit_opened",
			"module", "publisher",
			"consecutive_failures", p.opts.FailureThreshold,
		)
	}
}

// Reset closes the circuit and resumes normal enqueue/flush behavior.
// This is the only recovery path besides a successful in-between
// delivery; while open the publisher never probes on its own.
func (p *Publisher) Reset() {
	p.mu.Lock()
	p.state = StateClosed
	p.failures = 0
	p.mu.Unlock()

	p.logger.Info("publisher circuit reset",
		"event", "publisher_circuit_reset",
		"module", "publisher",
	)
}

// Close stops the flush loop and makes one best-effort final delivery
// of whatever remains queued, provided the circuit is not open.
func (p *Publisher) Close(ctx context.Context) {
	p.once.Do(func() { close(p.done) })
	p.Flush(ctx)
}
