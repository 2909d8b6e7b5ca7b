// Package stats implements the process-wide statistics sink: atomic
// scalar counters plus a couple of mutex-guarded maps, grounded on
// original_source/include/stats.hpp's field layout and reproduced with
// Go's sync/atomic and sync.Mutex rather than std::atomic/std::mutex.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known error-kind histogram keys.
const (
	ErrConnectionFailed  = "connection_failed"
	ErrTLSHandshake      = "tls_handshake_failed"
	ErrSendFailed        = "send_failed"
	ErrRetry             = "retry"
	ErrMaxRetriesExceeded = "max_retries_exceeded"
)

// Sink is the shared counters handle the executor and its response
// reader record into. It is safe for concurrent use and is meant to be
// constructed once per Client and threaded down into every worker,
// never reached through a package-level global (see spec.md §9's note
// on avoiding true global mutable state).
type Sink struct {
	totalRequests     atomic.Uint64
	totalErrors       atomic.Uint64
	totalBytesRecv    atomic.Uint64
	totalBytesSent    atomic.Uint64
	connectionsCreated atomic.Uint64
	connectionsReused  atomic.Uint64
	dnsLookups        atomic.Uint64
	dnsCacheHits      atomic.Uint64

	totalLatencyMs   atomic.Uint64
	minLatencyMs     atomic.Uint64
	maxLatencyMs     atomic.Uint64

	totalDNSMs       atomic.Uint64
	totalTCPMs       atomic.Uint64
	totalFirstByteMs atomic.Uint64
	tcpHandshakeN    atomic.Uint64
	firstByteN       atomic.Uint64

	infoMu  sync.Mutex
	host    string
	ip      string
	secure  bool

	errMu  sync.Mutex
	errors map[string]uint64

	// Progress surface (spec.md §6): monotonically increasing byte
	// counters sampled asynchronously by a presentation-layer poller.
	downloaded atomic.Uint64
	total      atomic.Uint64
	running    atomic.Bool
}

const noMin = ^uint64(0)

// New creates an empty Sink.
func New() *Sink {
	s := &Sink{errors: make(map[string]uint64)}
	s.minLatencyMs.Store(noMin)
	return s
}

// RecordRequest records one completed request's latency and its received
// byte count (the executor passes the wire body size, before
// decompression).
func (s *Sink) RecordRequest(latency time.Duration, bytesReceived int64) {
	s.totalRequests.Add(1)
	s.totalBytesRecv.Add(uint64(bytesReceived))
	ms := uint64(latency.Milliseconds())
	s.totalLatencyMs.Add(ms)
	casMin(&s.minLatencyMs, ms)
	casMax(&s.maxLatencyMs, ms)
}

func casMin(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v >= cur {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func casMax(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v <= cur {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

// RecordConnection tallies a connection as newly created or reused from
// the pool.
func (s *Sink) RecordConnection(reused bool) {
	if reused {
		s.connectionsReused.Add(1)
	} else {
		s.connectionsCreated.Add(1)
	}
}

// RecordError increments the total error count and the named
// error-kind histogram bucket.
func (s *Sink) RecordError(kind string) {
	s.totalErrors.Add(1)
	s.errMu.Lock()
	s.errors[kind]++
	s.errMu.Unlock()
}

// RecordDNSLookup records a DNS resolution's duration; cached lookups
// are recorded with duration 0 but still counted.
func (s *Sink) RecordDNSLookup(d time.Duration, cached bool) {
	s.dnsLookups.Add(1)
	if cached {
		s.dnsCacheHits.Add(1)
		return
	}
	s.totalDNSMs.Add(uint64(d.Milliseconds()))
}

// RecordTCPHandshake records the duration of one TCP connect phase,
// whether or not it produced a connection.
func (s *Sink) RecordTCPHandshake(d time.Duration) {
	s.totalTCPMs.Add(uint64(d.Milliseconds()))
	s.tcpHandshakeN.Add(1)
}

// RecordFirstByte records the time from request start to the first
// response byte.
func (s *Sink) RecordFirstByte(d time.Duration) {
	s.totalFirstByteMs.Add(uint64(d.Milliseconds()))
	s.firstByteN.Add(1)
}

// RecordBytesSent tallies request body bytes written to the wire.
func (s *Sink) RecordBytesSent(n int64) {
	s.totalBytesSent.Add(uint64(n))
}

// SetCurrent updates the current host/ip/secure triple under its own
// mutex, independent of the atomic scalar counters.
func (s *Sink) SetCurrent(host, ip string, secure bool) {
	s.infoMu.Lock()
	s.host, s.ip, s.secure = host, ip, secure
	s.infoMu.Unlock()
}

// Progress reports the two monotonic byte counters and the running
// flag the presentation layer polls every ~100ms.
func (s *Sink) Progress() (downloaded, total uint64, running bool) {
	return s.downloaded.Load(), s.total.Load(), s.running.Load()
}

// AddDownloaded bumps the downloaded-bytes counter; called from the
// response-read path on every chunk received.
func (s *Sink) AddDownloaded(n uint64) { s.downloaded.Add(n) }

// SetTotal sets the expected total byte count for the current
// operation (e.g. a segmented download's Content-Length).
func (s *Sink) SetTotal(n uint64) { s.total.Store(n) }

// SetRunning flips the running flag the progress poller watches to know
// when to stop sampling.
func (s *Sink) SetRunning(running bool) { s.running.Store(running) }

// Snapshot is an immutable point-in-time read of every counter, the
// shape the presentation layer formats for display.
type Snapshot struct {
	TotalRequests      uint64
	TotalErrors        uint64
	TotalBytesReceived uint64
	TotalBytesSent     uint64

	ConnectionsCreated uint64
	ConnectionsReused  uint64

	DNSLookups   uint64
	DNSCacheHits uint64

	AvgLatencyMs float64
	MinLatencyMs float64
	MaxLatencyMs float64

	AvgDNSMs       float64
	AvgTCPHandshakeMs float64
	AvgFirstByteMs float64

	CurrentHost   string
	CurrentIP     string
	CurrentSecure bool

	ErrorCounts map[string]uint64
}

// Snapshot reads every counter without resetting anything.
func (s *Sink) Snapshot() Snapshot {
	total := s.totalRequests.Load()

	s.infoMu.Lock()
	host, ip, secure := s.host, s.ip, s.secure
	s.infoMu.Unlock()

	s.errMu.Lock()
	errs := make(map[string]uint64, len(s.errors))
	for k, v := range s.errors {
		errs[k] = v
	}
	s.errMu.Unlock()

	minMs := s.minLatencyMs.Load()
	if minMs == noMin {
		minMs = 0
	}

	snap := Snapshot{
		TotalRequests:      total,
		TotalErrors:        s.totalErrors.Load(),
		TotalBytesReceived: s.totalBytesRecv.Load(),
		TotalBytesSent:     s.totalBytesSent.Load(),
		ConnectionsCreated: s.connectionsCreated.Load(),
		ConnectionsReused:  s.connectionsReused.Load(),
		DNSLookups:         s.dnsLookups.Load(),
		DNSCacheHits:       s.dnsCacheHits.Load(),
		MinLatencyMs:       float64(minMs),
		MaxLatencyMs:       float64(s.maxLatencyMs.Load()),
		CurrentHost:        host,
		CurrentIP:          ip,
		CurrentSecure:      secure,
		ErrorCounts:        errs,
	}
	if total > 0 {
		snap.AvgLatencyMs = float64(s.totalLatencyMs.Load()) / float64(total)
	}
	if n := s.dnsLookups.Load() - s.dnsCacheHits.Load(); n > 0 {
		snap.AvgDNSMs = float64(s.totalDNSMs.Load()) / float64(n)
	}
	if n := s.tcpHandshakeN.Load(); n > 0 {
		snap.AvgTCPHandshakeMs = float64(s.totalTCPMs.Load()) / float64(n)
	}
	if n := s.firstByteN.Load(); n > 0 {
		snap.AvgFirstByteMs = float64(s.totalFirstByteMs.Load()) / float64(n)
	}
	return snap
}

// Reset zeroes every statistics counter and the error-kind histogram, the
// way a long-lived CLI process reports interval deltas by snapshotting
// then resetting. The progress counters and the current host/ip/secure
// triple are left unchanged.
func (s *Sink) Reset() {
	s.totalRequests.Store(0)
	s.totalErrors.Store(0)
	s.totalBytesRecv.Store(0)
	s.totalBytesSent.Store(0)
	s.connectionsCreated.Store(0)
	s.connectionsReused.Store(0)
	s.dnsLookups.Store(0)
	s.dnsCacheHits.Store(0)
	s.totalLatencyMs.Store(0)
	s.minLatencyMs.Store(noMin)
	s.maxLatencyMs.Store(0)
	s.totalDNSMs.Store(0)
	s.totalTCPMs.Store(0)
	s.totalFirstByteMs.Store(0)
	s.tcpHandshakeN.Store(0)
	s.firstByteN.Store(0)

	s.errMu.Lock()
	s.errors = make(map[string]uint64)
	s.errMu.Unlock()
}
