package fetch

// Kind tells the engine what to do with a response.
type Kind int

const (
	// KindAccept passes the response to the request callback.
	KindAccept Kind = iota
	// KindRetry re-schedules Outcome.Request instead.
	KindRetry
)

func (k Kind) String() string {
	if k == KindRetry {
		return "retry"
	}
	return "accept"
}

// Outcome is the verdict of a response hook.
type Outcome struct {
	Kind     Kind
	Response *Response
	Request  *Request
	// Exhausted marks an accepted response whose retry budget ran out.
	Exhausted bool
}

func Accept(resp *Response) Outcome {
	return Outcome{Kind: KindAccept, Response: resp}
}

// Exhausted accepts resp after its retry budget was used up.
func Exhausted(resp *Response) Outcome {
	return Outcome{Kind: KindAccept, Response: resp, Exhausted: true}
}

func Retry(req *Request) Outcome {
	return Outcome{Kind: KindRetry, Request: req}
}
