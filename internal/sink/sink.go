// Package sink implements the engine's output fan-out: stdout, file, and
// Kafka-style destinations, each with its own bounded queue and worker,
// flushed on shutdown.
package sink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/resinker/internal/scheduler"
	"github.com/roach88/resinker/internal/simerr"
	"github.com/roach88/resinker/internal/value"
)

// Sink delivers one record to a single destination. Implementations own
// their connection/file handle, acquired and released on all exit paths.
type Sink interface {
	// Name identifies the sink for logging.
	Name() string
	Write(rec scheduler.Record) error
	Flush() error
	Close() error
}

// queueDepth bounds each sink's per-sink queue.
const queueDepth = 256

// FanOut delivers every emitted record to a fixed set of sinks, each on its
// own worker goroutine reading from its own bounded channel. A full queue
// blocks Emit until the slow sink's worker drains it; records already
// queued for the other sinks keep being written meanwhile, but the record
// being emitted reaches the sinks after the full one only once it drains.
type FanOut struct {
	sinks   []Sink
	queues  []chan scheduler.Record
	wg      sync.WaitGroup
	log     *slog.Logger
	closeMu sync.Once
}

// NewFanOut starts one worker per sink and returns a FanOut implementing
// scheduler.Emitter.
func NewFanOut(sinks []Sink, logger *slog.Logger) *FanOut {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FanOut{sinks: sinks, log: logger}
	f.queues = make([]chan scheduler.Record, len(sinks))
	for i, s := range sinks {
		q := make(chan scheduler.Record, queueDepth)
		f.queues[i] = q
		f.wg.Add(1)
		go f.worker(s, q)
	}
	return f
}

func (f *FanOut) worker(s Sink, q chan scheduler.Record) {
	defer f.wg.Done()
	for rec := range q {
		if err := s.Write(rec); err != nil {
			fault := simerr.NewSinkFault(s.Name(), err)
			f.log.Error("sink write failed", "sink", s.Name(), "event_type", rec.EventType, "error", fault)
		}
	}
}

// Emit enqueues rec on every sink's queue in turn, blocking on each full
// queue until it has room.
func (f *FanOut) Emit(rec scheduler.Record) {
	for _, q := range f.queues {
		q <- rec
	}
}

// Close drains and flushes every sink, then closes its resources.
func (f *FanOut) Close() {
	f.closeMu.Do(func() {
		for _, q := range f.queues {
			close(q)
		}
		f.wg.Wait()
		for _, s := range f.sinks {
			if err := s.Flush(); err != nil {
				f.log.Error("sink flush failed", "sink", s.Name(), "error", err)
			}
			if err := s.Close(); err != nil {
				f.log.Error("sink close failed", "sink", s.Name(), "error", err)
			}
		}
	})
}

// marshalRecord renders rec as a declared-order JSON object: event_type,
// timestamp, payload. pretty selects two-space indentation.
func marshalRecord(rec scheduler.Record, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"event_type":`)
	eventType, err := json.Marshal(rec.EventType)
	if err != nil {
		return nil, fmt.Errorf("marshal event_type: %w", err)
	}
	buf.Write(eventType)
	buf.WriteString(`,"timestamp":`)
	timestamp, err := json.Marshal(rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	if err != nil {
		return nil, fmt.Errorf("marshal timestamp: %w", err)
	}
	buf.Write(timestamp)
	buf.WriteString(`,"payload":`)
	payload, err := value.MarshalJSON(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	buf.Write(payload)
	buf.WriteByte('}')

	if !pretty {
		return buf.Bytes(), nil
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent record: %w", err)
	}
	return indented.Bytes(), nil
}
