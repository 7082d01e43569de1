// Package report implements the periodic Report / Stats Formatter (spec
// §4, component 5): a ticker goroutine that periodically synthesizes a
// point-in-time snapshot from the storage engine's statistics, hands it to
// a pluggable Formatter, and exposes the most recent snapshot for the
// report httpd admin surface to serve on demand.
package report

import (
	"sync"
	"time"

	"github.com/edgeproxy/edgeproxy/internal/storage"
	"github.com/edgeproxy/edgeproxy/internal/util/log"
)

// Formatter renders a storage.Snapshot into a user-facing representation —
// a log line, a JSON document, a terminal table. Implementations must not
// retain the Snapshot across calls, since its slices/maps are re-used by
// the caller.
type Formatter interface {
	Format(snapshot storage.Snapshot, generatedAt time.Time) ([]byte, error)
}

// TopPrefixLimit bounds how many top-URL-prefix rows a formatted report
// includes (spec §4.3 "bounded map of top URL prefixes").
const TopPrefixLimit = 20

// Reporter owns the periodic ticker and the most recently generated
// report, safe for concurrent reads from the report httpd handlers.
type Reporter struct {
	engine    *storage.Engine
	formatter Formatter
	logger    *log.Logger
	interval  time.Duration

	mu       sync.RWMutex
	last     []byte
	lastTime time.Time
	snapshot storage.Snapshot

	stop chan struct{}
	done chan struct{}
}

// New constructs a Reporter. Call Start to begin the periodic ticker.
func New(engine *storage.Engine, formatter Formatter, logger *log.Logger, interval time.Duration) *Reporter {
	return &Reporter{
		engine:    engine,
		formatter: formatter,
		logger:    logger,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the periodic report ticker until Stop is called. It
// generates one report immediately so the first /edgeproxy/report read
// doesn't have to wait a full interval.
func (r *Reporter) Start() {
	r.generate()
	go r.loop()
}

func (r *Reporter) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.generate()
		case <-r.stop:
			return
		}
	}
}

func (r *Reporter) generate() {
	snapshot := r.engine.Stats().Snapshot(TopPrefixLimit)
	now := time.Now()
	data, err := r.formatter.Format(snapshot, now)
	if err != nil {
		r.logger.Warn("report formatting failed", log.Pairs{"error": err.Error()})
		return
	}
	r.mu.Lock()
	r.last = data
	r.lastTime = now
	r.snapshot = snapshot
	r.mu.Unlock()
}

// Latest returns the most recently generated report (rendered by the
// Reporter's configured Formatter) and when it was generated.
func (r *Reporter) Latest() ([]byte, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.lastTime
}

// FormatWith re-renders the most recently captured snapshot through an
// arbitrary Formatter, letting the report httpd admin surface serve
// alternate representations (e.g. ?format=text) without re-running a
// periodic tick for every request.
func (r *Reporter) FormatWith(formatter Formatter) ([]byte, time.Time, error) {
	r.mu.RLock()
	snapshot := r.snapshot
	generatedAt := r.lastTime
	r.mu.RUnlock()
	if generatedAt.IsZero() {
		return nil, generatedAt, nil
	}
	data, err := formatter.Format(snapshot, generatedAt)
	return data, generatedAt, err
}

// Stop cancels the periodic ticker (spec §5 shutdown: "cancel the periodic
// report timer") and emits one final report before returning.
func (r *Reporter) Stop() {
	close(r.stop)
	<-r.done
	r.generate()
	r.logger.Info("final report emitted", log.Pairs{})
}
