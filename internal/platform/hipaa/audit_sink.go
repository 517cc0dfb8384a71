package hipaa

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	auditEntriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_entries_total",
		Help: "Audit entries accepted by the sink, by outcome.",
	}, []string{"outcome"})

	auditOverflowTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_overflow_total",
		Help: "Audit entries written synchronously because the queue was full.",
	})

	auditWriteErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_errors_total",
		Help: "Audit entries the store failed to persist.",
	})
)

// RegisterAuditMetrics registers the sink counters with reg.
func RegisterAuditMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{auditEntriesTotal, auditOverflowTotal, auditWriteErrorsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AsyncAuditSink queues entries on a buffered channel drained by worker
// goroutines, so a slow store does not add latency to responses. A full
// queue falls back to writing inline rather than dropping the entry. Store
// errors are logged and never returned.
type AsyncAuditSink struct {
	store        AuditRecorder
	queue        chan AuditEntry
	logger       zerolog.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncAuditSink starts workers goroutines writing to store.
func NewAsyncAuditSink(store AuditRecorder, buffer, workers int, logger zerolog.Logger) *AsyncAuditSink {
	if buffer < 0 {
		buffer = 0
	}
	if workers <= 0 {
		workers = 1
	}
	s := &AsyncAuditSink{
		store:        store,
		queue:        make(chan AuditEntry, buffer),
		logger:       logger,
		writeTimeout: 5 * time.Second,
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// RecordAccess enqueues entry. It always returns nil.
func (s *AsyncAuditSink) RecordAccess(ctx context.Context, entry AuditEntry) error {
	auditEntriesTotal.WithLabelValues(entry.Outcome).Inc()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.closed {
		select {
		case s.queue <- entry:
			return nil
		default:
			auditOverflowTotal.Inc()
		}
	}
	s.write(context.WithoutCancel(ctx), entry)
	return nil
}

// Close stops accepting queued entries and waits for the queue to drain.
// Entries recorded after Close are written inline.
func (s *AsyncAuditSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *AsyncAuditSink) worker() {
	defer s.wg.Done()
	for entry := range s.queue {
		s.write(context.Background(), entry)
	}
}

func (s *AsyncAuditSink) write(ctx context.Context, entry AuditEntry) {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	if err := s.store.RecordAccess(ctx, entry); err != nil {
		auditWriteErrorsTotal.Inc()
		s.logger.Error().Err(err).
			Str("audit_id", entry.ID).
			Str("action", entry.Action).
			Msg("audit write failed")
	}
}
