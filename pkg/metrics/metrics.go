package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics collects counters for the remote tokenizers and the extraction
// engine. All methods are nil-safe so call sites never have to guard.
type Metrics struct {
	mu sync.RWMutex

	// Range GET metrics, keyed by source (bucket/key or URL)
	RangeGetBytesTotal map[string]int64
	RangeGetCountTotal map[string]int64
	RangeGetDurationNs map[string]int64

	// Decompression metrics
	InflateCPUNs      int64
	InflateCountTotal int64

	// Engine metrics
	EntriesTotal      int64
	ScannedBytesTotal int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		RangeGetBytesTotal: make(map[string]int64),
		RangeGetCountTotal: make(map[string]int64),
		RangeGetDurationNs: make(map[string]int64),
	}
}

// RecordRangeGet records a ranged read against a remote source.
func (m *Metrics) RecordRangeGet(source string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RangeGetBytesTotal[source] += bytes
	m.RangeGetCountTotal[source]++
	m.RangeGetDurationNs[source] += duration.Nanoseconds()

	log.Debug().
		Str("source", source).
		Int64("bytes", bytes).
		Dur("duration", duration).
		Msg("range get")
}

// RecordInflate records one decompression of a compressed payload.
func (m *Metrics) RecordInflate(duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InflateCountTotal++
	m.InflateCPUNs += duration.Nanoseconds()
}

// RecordEntry records one archive entry delivered to a filter, along with the
// payload bytes consumed for it.
func (m *Metrics) RecordEntry(payloadBytes int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EntriesTotal++
	m.ScannedBytesTotal += payloadBytes
}

// Snapshot returns a copy safe to read without holding the lock.
func (m *Metrics) Snapshot() Metrics {
	if m == nil {
		return Metrics{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Metrics{
		RangeGetBytesTotal: make(map[string]int64, len(m.RangeGetBytesTotal)),
		RangeGetCountTotal: make(map[string]int64, len(m.RangeGetCountTotal)),
		RangeGetDurationNs: make(map[string]int64, len(m.RangeGetDurationNs)),
		InflateCPUNs:       m.InflateCPUNs,
		InflateCountTotal:  m.InflateCountTotal,
		EntriesTotal:       m.EntriesTotal,
		ScannedBytesTotal:  m.ScannedBytesTotal,
	}
	for k, v := range m.RangeGetBytesTotal {
		out.RangeGetBytesTotal[k] = v
	}
	for k, v := range m.RangeGetCountTotal {
		out.RangeGetCountTotal[k] = v
	}
	for k, v := range m.RangeGetDurationNs {
		out.RangeGetDurationNs[k] = v
	}
	return out
}
