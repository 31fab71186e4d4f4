package retry

import (
	"alkoscraper/pkg/fetch"
	"alkoscraper/pkg/logger"
)

// PolicyConfig controls proxy retries for blocked responses
type PolicyConfig struct {
	// RetryableStatusCodes trigger a retry through a different proxy
	RetryableStatusCodes []int
	// MaxRetries is the number of retries allowed per logical request
	MaxRetries int
}

// DefaultPolicyConfig retries 403 and 429 up to three times
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		RetryableStatusCodes: []int{403, 429},
		MaxRetries:           3,
	}
}

// Policy decides whether a response is accepted or the request is re-issued
// through another proxy. It holds no mutable state; the retry count lives on
// the request.
type Policy struct {
	cfg        PolicyConfig
	codes      map[int]struct{}
	maxRetries int
	logger     logger.Logger
}

// NewPolicy creates a Policy. A negative MaxRetries is treated as zero.
func NewPolicy(cfg PolicyConfig, log logger.Logger) *Policy {
	codes := make(map[int]struct{}, len(cfg.RetryableStatusCodes))
	for _, c := range cfg.RetryableStatusCodes {
		codes[c] = struct{}{}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Policy{
		cfg:        PolicyConfig{RetryableStatusCodes: append([]int(nil), cfg.RetryableStatusCodes...), MaxRetries: maxRetries},
		codes:      codes,
		maxRetries: maxRetries,
		logger:     log.WithField("component", "proxy_retry"),
	}
}

// Retryable reports whether status triggers a proxy retry
func (p *Policy) Retryable(status int) bool {
	_, ok := p.codes[status]
	return ok
}

// Config returns the effective configuration
func (p *Policy) Config() PolicyConfig {
	return PolicyConfig{
		RetryableStatusCodes: append([]int(nil), p.cfg.RetryableStatusCodes...),
		MaxRetries:           p.cfg.MaxRetries,
	}
}

// MaxRetries returns the per-request retry budget
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// OnResponse inspects resp for req. Blocked statuses within budget produce a
// Retry outcome carrying a replay of req with the proxy cleared, so the next
// dispatch gets a fresh assignment. Once the budget is spent the response is
// accepted and marked exhausted.
func (p *Policy) OnResponse(req *fetch.Request, resp *fetch.Response) fetch.Outcome {
	if !p.Retryable(resp.Status) {
		return fetch.Accept(resp)
	}

	n := req.Attempt.RetryCount
	if n >= p.maxRetries {
		p.logger.ErrorWithFields("max proxy retries reached", map[string]interface{}{
			"url":         req.URL.String(),
			"status":      resp.Status,
			"max_retries": p.maxRetries,
			"proxy":       req.Attempt.AssignedProxy,
		})
		return fetch.Exhausted(resp)
	}

	req.Attempt.RetryCount = n + 1

	if old := req.Attempt.AssignedProxy; old != "" {
		p.logger.WarnWithFields("blocked response, retrying with another proxy", map[string]interface{}{
			"status":    resp.Status,
			"url":       req.URL.String(),
			"old_proxy": old,
			"attempt":   n + 1,
			"max":       p.maxRetries,
		})
		req.ClearProxy()
	} else {
		p.logger.DebugWithFields("blocked response, retrying directly", map[string]interface{}{
			"status":  resp.Status,
			"url":     req.URL.String(),
			"attempt": n + 1,
			"max":     p.maxRetries,
		})
	}

	return fetch.Retry(req.Replay())
}
