package anticheat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ricochet-gg/ricochet/internal/core/observability/log"
)

// Threat is one escalation-worthy observation about an entity.
type Threat struct {
	ID         string
	EntityID   string
	Kind       Flag
	Severity   uint8 // 1..10
	Evidence   map[string]any
	ReportedAt time.Time
}

// Reporter receives threat reports. Implementations must never block the
// caller; the hot path treats Report as fire-and-forget.
type Reporter interface {
	Report(threat Threat)
}

// Sink is the downstream escalation service consuming flushed threats.
type Sink interface {
	Consume(threat Threat)
}

// NewThreat builds a Threat with a fresh report ID and timestamp.
func NewThreat(entityID string, kind Flag, severity uint8, evidence map[string]any) Threat {
	if severity < 1 {
		severity = 1
	}
	if severity > 10 {
		severity = 10
	}
	return Threat{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Kind:       kind,
		Severity:   severity,
		Evidence:   evidence,
		ReportedAt: time.Now(),
	}
}

var _ Reporter = (*Dispatcher)(nil)

// Dispatcher buffers threats on a bounded queue and flushes them to the sink
// from a background worker. A full queue drops the report and bumps a counter
// instead of blocking the validation path.
type Dispatcher struct {
	sink    Sink
	queue   chan Threat
	logger  log.Log
	dropped atomic.Uint64

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewDispatcher(sink Sink, queueSize int, logger log.Log) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = log.Nop()
	}
	d := &Dispatcher{
		sink:     sink,
		queue:    make(chan Threat, queueSize),
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go d.flushLoop()
	return d
}

// Report enqueues a threat. Never blocks.
func (d *Dispatcher) Report(threat Threat) {
	select {
	case d.queue <- threat:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns how many threats were discarded due to a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops the flush worker after draining the queue.
func (d *Dispatcher) Close() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	<-d.done
}

func (d *Dispatcher) flushLoop() {
	defer close(d.done)
	for {
		select {
		case threat := <-d.queue:
			d.consume(threat)
		case <-d.stopChan:
			for {
				select {
				case threat := <-d.queue:
					d.consume(threat)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) consume(threat Threat) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("threat sink panicked", log.Any("panic", r))
		}
	}()
	d.sink.Consume(threat)
	d.logger.Debug("threat reported",
		log.String("report_id", threat.ID),
		log.String("entity_id", threat.EntityID),
		log.String("kind", threat.Kind.String()),
		log.Int("severity", int(threat.Severity)),
	)
}

// NopReporter discards every report. Test double for the escalation port.
type NopReporter struct{}

func (NopReporter) Report(Threat) {}

// LogSink records threats to the structured log. Default sink when no
// escalation service is wired.
type LogSink struct {
	Logger log.Log
}

func (s LogSink) Consume(threat Threat) {
	s.Logger.Warn("threat escalated",
		log.String("report_id", threat.ID),
		log.String("entity_id", threat.EntityID),
		log.String("kind", threat.Kind.String()),
		log.Int("severity", int(threat.Severity)),
		log.Any("evidence", threat.Evidence),
	)
}
