package stats

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alkoscraper/pkg/logger"
)

const namespace = "alkoscraper"

// Collector exports a Stats as Prometheus metrics
type Collector struct {
	stats *Stats

	counters  map[string]*prometheus.Desc
	responses *prometheus.Desc
	latency   *prometheus.Desc
}

// NewCollector builds a collector over s
func NewCollector(s *Stats) *Collector {
	c := &Collector{
		stats:    s,
		counters: make(map[string]*prometheus.Desc),
		responses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "responses_total"),
			"HTTP responses received, by status code.",
			[]string{"status"}, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "response_latency_avg_seconds"),
			"Average response latency.",
			nil, nil,
		),
	}
	for name, help := range counterHelp {
		c.counters[name] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", name+"_total"), help, nil, nil,
		)
	}
	return c
}

var counterHelp = map[string]string{
	"requests_scheduled": "Requests accepted by the scheduler.",
	"requests_sent":      "HTTP requests sent, including transport retries.",
	"proxy_assignments":  "Dispatches routed through a proxy.",
	"direct_dispatches":  "Dispatches sent without a proxy.",
	"proxy_retries":      "Blocked responses re-issued through another proxy.",
	"retries_exhausted":  "Requests that used up their proxy retry budget.",
	"transport_retries":  "Retries after network errors or server errors.",
	"transport_failures": "Requests abandoned after transport retries.",
	"dupes_filtered":     "Requests dropped as duplicates.",
	"items_scraped":      "Items written to the feed.",
	"item_errors":        "Items the feed failed to store.",
	"callback_errors":    "Callbacks that returned an error.",
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.responses
	ch <- c.latency
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	values := map[string]int64{
		"requests_scheduled": snap.RequestsScheduled,
		"requests_sent":      snap.RequestsSent,
		"proxy_assignments":  snap.ProxyAssignments,
		"direct_dispatches":  snap.DirectDispatches,
		"proxy_retries":      snap.ProxyRetries,
		"retries_exhausted":  snap.RetriesExhausted,
		"transport_retries":  snap.TransportRetries,
		"transport_failures": snap.TransportFailures,
		"dupes_filtered":     snap.DupesFiltered,
		"items_scraped":      snap.ItemsScraped,
		"item_errors":        snap.ItemErrors,
		"callback_errors":    snap.CallbackErrors,
	}
	for name, desc := range c.counters {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(values[name]))
	}
	for _, sc := range snap.Statuses {
		ch <- prometheus.MustNewConstMetric(c.responses, prometheus.CounterValue,
			float64(sc.Count), strconv.Itoa(sc.Status))
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, snap.AvgLatency.Seconds())
}

// Server serves /metrics for the duration of a crawl
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve registers s on a fresh registry and starts listening on addr.
// Errors after startup are logged.
func Serve(addr, path string, s *Stats, log logger.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(s)); err != nil {
		return nil, err
	}
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	log.InfoWithFields("metrics endpoint listening", map[string]interface{}{
		"addr": ln.Addr().String(),
		"path": path,
	})
	return &Server{srv: srv, ln: ln}, nil
}

// Addr is the bound listen address
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
