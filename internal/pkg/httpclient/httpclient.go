package httpclient

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"
)

// New returns a fasthttp client tuned for short JSON/XML API calls.
func New(name string) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                name,
		MaxConnsPerHost:     64,
		MaxIdleConnDuration: 30 * time.Second,
	}
}

// Do executes req honoring the earlier of ctx's deadline and timeout. A zero
// timeout and no ctx deadline means the request may wait indefinitely.
func Do(ctx context.Context, c *fasthttp.Client, timeout time.Duration, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if timeout > 0 {
		if t := time.Now().Add(timeout); !ok || t.Before(deadline) {
			deadline, ok = t, true
		}
	}
	if ok {
		return c.DoDeadline(req, resp, deadline)
	}
	return c.Do(req, resp)
}
