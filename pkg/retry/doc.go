// Package retry holds both retry layers of the crawler.
//
// Policy handles blocked responses (403/429 by default): it bumps the
// request's retry count, clears the proxy so the next dispatch picks another
// one, and hands back a replay that bypasses the duplicate filter. When the
// budget is spent the response goes to the callback as-is.
//
// Do and DoWithResult wrap a single dispatch and re-run it on network
// failures and 5xx responses, with backoff chosen per error type:
//
//	resp, err := retry.DoWithResult(func() (*fetch.Response, error) {
//		assigner.Assign(req)
//		return downloader.Fetch(ctx, req)
//	}, &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.NewErrorTypeBackoff(),
//		Context:     ctx,
//		Logger:      log,
//	})
package retry
