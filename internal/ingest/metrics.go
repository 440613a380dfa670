package ingest

import "sync/atomic"

// Metrics counts the per-ingestor outcomes spec.md §4.G requires be
// observable even though parse/mapping/template failures never block
// consumer progress.
type Metrics struct {
	consumed     int64
	filtered     int64
	parseErrors  int64
	mappingErrors int64
	dispatched   int64
	dispatchErrs int64
}

func (m *Metrics) incConsumed()      { atomic.AddInt64(&m.consumed, 1) }
func (m *Metrics) incFiltered()      { atomic.AddInt64(&m.filtered, 1) }
func (m *Metrics) incParseErrors()   { atomic.AddInt64(&m.parseErrors, 1) }
func (m *Metrics) incMappingErrors() { atomic.AddInt64(&m.mappingErrors, 1) }
func (m *Metrics) incDispatched()    { atomic.AddInt64(&m.dispatched, 1) }
func (m *Metrics) incDispatchErrs()  { atomic.AddInt64(&m.dispatchErrs, 1) }

// Snapshot is a point-in-time copy of the counters, safe to read
// concurrently with further updates.
type Snapshot struct {
	Consumed      int64
	Filtered      int64
	ParseErrors   int64
	MappingErrors int64
	Dispatched    int64
	DispatchErrs  int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Consumed:      atomic.LoadInt64(&m.consumed),
		Filtered:      atomic.LoadInt64(&m.filtered),
		ParseErrors:   atomic.LoadInt64(&m.parseErrors),
		MappingErrors: atomic.LoadInt64(&m.mappingErrors),
		Dispatched:    atomic.LoadInt64(&m.dispatched),
		DispatchErrs:  atomic.LoadInt64(&m.dispatchErrs),
	}
}
