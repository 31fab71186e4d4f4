package crawl

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"alkoscraper/internal/dupefilter"
	errs "alkoscraper/pkg/errors"
	"alkoscraper/pkg/feed"
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
	"alkoscraper/pkg/ratelimit"
	"alkoscraper/pkg/retry"
	"alkoscraper/pkg/stats"
)

// TransportRetry configures re-dispatching after network errors and server errors
type TransportRetry struct {
	// MaxAttempts is the total number of dispatches per request, at least 1
	MaxAttempts int
	// HTTPCodes are statuses treated as transient server errors
	HTTPCodes []int
	Backoff   retry.BackoffStrategy
}

// Options configures an Engine
type Options struct {
	// Concurrency is the number of in-flight requests, default 10
	Concurrency   int
	Limiter       ratelimit.Limiter
	Filter        dupefilter.Filter
	RequestHooks  []RequestHook
	ResponseHooks []ResponseHook
	Transport     TransportRetry
	Exporter      feed.Exporter
	Stats         *stats.Stats
	// ProgressInterval enables periodic progress logging when positive
	ProgressInterval time.Duration
}

// Engine schedules and dispatches requests. An Engine runs one crawl.
type Engine struct {
	opts           Options
	downloader     Downloader
	logger         logger.Logger
	sem            *semaphore.Weighted
	transportCodes map[int]struct{}

	wg        sync.WaitGroup
	inFlight  atomic.Int64
	completed atomic.Int64
}

// New creates an Engine. Missing optional components get defaults: an
// in-memory duplicate filter, no rate limit and fresh stats.
func New(opts Options, d Downloader, log logger.Logger) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.Filter == nil {
		opts.Filter = dupefilter.NewMemory()
	}
	if opts.Stats == nil {
		opts.Stats = stats.New()
	}
	if opts.Transport.MaxAttempts < 1 {
		opts.Transport.MaxAttempts = 1
	}
	codes := make(map[int]struct{}, len(opts.Transport.HTTPCodes))
	for _, c := range opts.Transport.HTTPCodes {
		codes[c] = struct{}{}
	}
	return &Engine{
		opts:           opts,
		downloader:     d,
		logger:         log.WithField("component", "engine"),
		sem:            semaphore.NewWeighted(int64(opts.Concurrency)),
		transportCodes: codes,
	}
}

// Stats returns the counters the engine records into
func (e *Engine) Stats() *stats.Stats {
	return e.opts.Stats
}

// Run schedules seeds and blocks until every request and everything it
// produced has been processed, or ctx is done.
func (e *Engine) Run(ctx context.Context, seeds []*fetch.Request) error {
	logger.LogComponentStart(e.logger, "engine", map[string]interface{}{
		"concurrency": e.opts.Concurrency,
		"seeds":       len(seeds),
	})

	stopProgress := e.startProgress(ctx)
	for _, req := range seeds {
		e.schedule(ctx, req)
	}
	e.wg.Wait()
	stopProgress()
	e.opts.Stats.Finish()

	reason := "finished"
	if err := ctx.Err(); err != nil {
		reason = err.Error()
		logger.LogComponentStop(e.logger, "engine", reason)
		return err
	}
	logger.LogComponentStop(e.logger, "engine", reason)
	return nil
}

func (e *Engine) startProgress(ctx context.Context) func() {
	if e.opts.ProgressInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.opts.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.logProgress()
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		e.logProgress()
	}
}

func (e *Engine) logProgress() {
	logger.LogCrawlProgress(e.logger,
		e.opts.Stats.RequestsScheduled.Load(),
		e.completed.Load(),
		e.inFlight.Load(),
		e.opts.Stats.ItemsScraped.Load(),
	)
}

// schedule filters req and starts a goroutine that waits for a slot
func (e *Engine) schedule(ctx context.Context, req *fetch.Request) {
	if req == nil || ctx.Err() != nil {
		return
	}
	if !req.DontFilter {
		seen, err := e.opts.Filter.Seen(ctx, req.Fingerprint())
		if err != nil {
			e.logger.WithError(err).WarnWithFields("duplicate filter failed, scheduling anyway", map[string]interface{}{
				"url": req.URL.String(),
			})
		} else if seen {
			e.opts.Stats.DupesFiltered.Add(1)
			e.logger.DebugWithFields("filtered duplicate request", map[string]interface{}{
				"url": req.URL.String(),
			})
			return
		}
	}

	e.opts.Stats.RequestsScheduled.Add(1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.sem.Release(1)

		e.inFlight.Add(1)
		defer e.inFlight.Add(-1)
		e.process(ctx, req)
		e.completed.Add(1)
	}()
}

func (e *Engine) process(ctx context.Context, req *fetch.Request) {
	if e.opts.Limiter != nil {
		if err := e.opts.Limiter.Wait(ctx); err != nil {
			return
		}
	}

	resp, err := e.download(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		e.opts.Stats.TransportFailures.Add(1)
		e.logger.WithError(err).ErrorWithFields("request failed", map[string]interface{}{
			"url":   req.URL.String(),
			"proxy": req.Attempt.AssignedProxy,
		})
		return
	}

	if obs, ok := e.opts.Limiter.(ratelimit.Observer); ok {
		obs.Observe(resp.Latency, resp.Status)
	}

	exhausted := false
	for _, h := range e.opts.ResponseHooks {
		outcome := h.OnResponse(req, resp)
		if outcome.Kind == fetch.KindRetry {
			e.opts.Stats.ProxyRetries.Add(1)
			e.schedule(ctx, outcome.Request)
			return
		}
		exhausted = exhausted || outcome.Exhausted
		if outcome.Response != nil {
			resp = outcome.Response
		}
	}
	if exhausted {
		e.opts.Stats.RetriesExhausted.Add(1)
	}

	e.handle(ctx, req, resp)
}

// download dispatches req, re-running the request hooks before every attempt
func (e *Engine) download(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	attempt := func() (*fetch.Response, error) {
		for _, h := range e.opts.RequestHooks {
			h.Assign(req)
		}
		if req.Proxy != nil {
			e.opts.Stats.ProxyAssignments.Add(1)
		} else {
			e.opts.Stats.DirectDispatches.Add(1)
		}

		e.opts.Stats.RequestsSent.Add(1)
		resp, err := e.downloader.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		e.opts.Stats.RecordResponse(resp.Status, resp.Latency)

		if _, ok := e.transportCodes[resp.Status]; ok {
			return resp, &errs.Error{Type: errs.ErrorTypeServerError, Code: resp.Status, Message: req.URL.String()}
		}
		return resp, nil
	}

	cfg := &retry.Config{
		MaxAttempts: e.opts.Transport.MaxAttempts,
		Backoff:     e.opts.Transport.Backoff,
		RetryIf:     retry.DefaultRetryIf,
		OnRetry: func(int, error, time.Duration) {
			e.opts.Stats.TransportRetries.Add(1)
		},
		Context: ctx,
		Logger:  e.logger.WithField("url", req.URL.String()),
	}

	resp, err := retry.DoWithResult(attempt, cfg)
	if err != nil && resp != nil && errs.TypeOf(err) == errs.ErrorTypeServerError && ctx.Err() == nil {
		// out of transport retries: the server error response is passed on
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// handle runs the callback and routes its output
func (e *Engine) handle(ctx context.Context, req *fetch.Request, resp *fetch.Response) {
	if req.Callback == nil {
		return
	}

	result, err := req.Callback(ctx, resp)
	if err != nil {
		e.opts.Stats.CallbackErrors.Add(1)
		e.logger.WithError(err).ErrorWithFields("callback failed", map[string]interface{}{
			"url":    req.URL.String(),
			"status": resp.Status,
		})
	}

	for _, item := range result.Items {
		if e.opts.Exporter == nil {
			e.opts.Stats.ItemsScraped.Add(1)
			continue
		}
		if err := e.opts.Exporter.Export(item); err != nil {
			e.opts.Stats.ItemErrors.Add(1)
			e.logger.WithError(err).Error("failed to export item")
			continue
		}
		e.opts.Stats.ItemsScraped.Add(1)
	}

	for _, next := range result.Requests {
		e.schedule(ctx, next)
	}
}
