// Package stats counts what happened during a crawl and exposes the counters
// to Prometheus and as an end-of-run Markdown report.
package stats

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is safe for concurrent use. The zero value is not usable; call New.
type Stats struct {
	started time.Time

	RequestsScheduled atomic.Int64
	RequestsSent      atomic.Int64
	ProxyAssignments  atomic.Int64
	DirectDispatches  atomic.Int64
	ProxyRetries      atomic.Int64
	RetriesExhausted  atomic.Int64
	TransportRetries  atomic.Int64
	TransportFailures atomic.Int64
	DupesFiltered     atomic.Int64
	ItemsScraped      atomic.Int64
	ItemErrors        atomic.Int64
	CallbackErrors    atomic.Int64

	mu       sync.Mutex
	statuses map[int]int64
	latency  time.Duration
	finished time.Time
}

func New() *Stats {
	return &Stats{started: time.Now(), statuses: make(map[int]int64)}
}

// RecordResponse counts one received response
func (s *Stats) RecordResponse(status int, latency time.Duration) {
	s.mu.Lock()
	s.statuses[status]++
	s.latency += latency
	s.mu.Unlock()
}

// Finish freezes the elapsed time reported by Snapshot
func (s *Stats) Finish() {
	s.mu.Lock()
	if s.finished.IsZero() {
		s.finished = time.Now()
	}
	s.mu.Unlock()
}

// StatusCount is one row of the per-status breakdown
type StatusCount struct {
	Status int
	Count  int64
}

// Snapshot is a point-in-time copy of the counters
type Snapshot struct {
	Elapsed           time.Duration
	RequestsScheduled int64
	RequestsSent      int64
	Responses         int64
	ProxyAssignments  int64
	DirectDispatches  int64
	ProxyRetries      int64
	RetriesExhausted  int64
	TransportRetries  int64
	TransportFailures int64
	DupesFiltered     int64
	ItemsScraped      int64
	ItemErrors        int64
	CallbackErrors    int64
	AvgLatency        time.Duration
	Statuses          []StatusCount
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		RequestsScheduled: s.RequestsScheduled.Load(),
		RequestsSent:      s.RequestsSent.Load(),
		ProxyAssignments:  s.ProxyAssignments.Load(),
		DirectDispatches:  s.DirectDispatches.Load(),
		ProxyRetries:      s.ProxyRetries.Load(),
		RetriesExhausted:  s.RetriesExhausted.Load(),
		TransportRetries:  s.TransportRetries.Load(),
		TransportFailures: s.TransportFailures.Load(),
		DupesFiltered:     s.DupesFiltered.Load(),
		ItemsScraped:      s.ItemsScraped.Load(),
		ItemErrors:        s.ItemErrors.Load(),
		CallbackErrors:    s.CallbackErrors.Load(),
	}

	s.mu.Lock()
	end := s.finished
	if end.IsZero() {
		end = time.Now()
	}
	snap.Elapsed = end.Sub(s.started)
	for status, n := range s.statuses {
		snap.Statuses = append(snap.Statuses, StatusCount{Status: status, Count: n})
		snap.Responses += n
	}
	if snap.Responses > 0 {
		snap.AvgLatency = s.latency / time.Duration(snap.Responses)
	}
	s.mu.Unlock()

	sort.Slice(snap.Statuses, func(i, j int) bool {
		return snap.Statuses[i].Status < snap.Statuses[j].Status
	})
	return snap
}

// Fields flattens the snapshot for structured logging
func (snap Snapshot) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"elapsed":            snap.Elapsed.Round(time.Millisecond).String(),
		"requests_scheduled": snap.RequestsScheduled,
		"requests_sent":      snap.RequestsSent,
		"responses":          snap.Responses,
		"proxy_retries":      snap.ProxyRetries,
		"retries_exhausted":  snap.RetriesExhausted,
		"transport_retries":  snap.TransportRetries,
		"transport_failures": snap.TransportFailures,
		"dupes_filtered":     snap.DupesFiltered,
		"items_scraped":      snap.ItemsScraped,
	}
	for _, sc := range snap.Statuses {
		fields["status_"+strconv.Itoa(sc.Status)] = sc.Count
	}
	return fields
}
