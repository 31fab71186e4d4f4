package crawl

import (
	"context"

	"alkoscraper/pkg/fetch"
)

// Downloader performs one HTTP exchange
type Downloader interface {
	Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// RequestHook runs before every dispatch, including transport retries
type RequestHook interface {
	Assign(req *fetch.Request)
}

// ResponseHook inspects every response before the callback sees it
type ResponseHook interface {
	OnResponse(req *fetch.Request, resp *fetch.Response) fetch.Outcome
}

// RequestHookFunc adapts a function to RequestHook
type RequestHookFunc func(req *fetch.Request)

func (f RequestHookFunc) Assign(req *fetch.Request) { f(req) }

// ResponseHookFunc adapts a function to ResponseHook
type ResponseHookFunc func(req *fetch.Request, resp *fetch.Response) fetch.Outcome

func (f ResponseHookFunc) OnResponse(req *fetch.Request, resp *fetch.Response) fetch.Outcome {
	return f(req, resp)
}
