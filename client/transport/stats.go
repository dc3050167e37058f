package transport

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Stats tracks request counts, bytes moved and request latency for one
// Client.
type Stats struct {
	mu            sync.Mutex
	requests      int64
	errors        int64
	bytesSent     int64
	bytesReceived int64

	// request latency in microseconds, 1µs to 10min
	latencyHist *hdrhistogram.Histogram
}

// NewStats returns empty Stats.
func NewStats() *Stats {
	return &Stats{
		latencyHist: hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3),
	}
}

// record adds one completed request.
func (s *Stats) record(latency time.Duration, sent, received int64, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if failed {
		s.errors++
	}
	s.bytesSent += sent
	s.bytesReceived += received
	s.latencyHist.RecordValue(latency.Microseconds())
}

// Requests returns the number of requests made.
func (s *Stats) Requests() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Errors returns the number of requests that failed.
func (s *Stats) Errors() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors
}

// BytesSent returns the total request body bytes sent.
func (s *Stats) BytesSent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesSent
}

// BytesReceived returns the total response body bytes received.
func (s *Stats) BytesReceived() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesReceived
}

// LatencyPercentile returns the latency at a given percentile.
func (s *Stats) LatencyPercentile(p float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.latencyHist.ValueAtQuantile(p)) * time.Microsecond
}

// LatencyMax returns the maximum latency recorded.
func (s *Stats) LatencyMax() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.latencyHist.Max()) * time.Microsecond
}
