package backend

import (
	"context"
	"io"
)

// upstreamResponse implements core.Response for upstream replies
type upstreamResponse struct {
	statusCode int
	headers    map[string][]string
	body       io.ReadCloser
}

func (r *upstreamResponse) StatusCode() int {
	return r.statusCode
}

func (r *upstreamResponse) Headers() map[string][]string {
	return r.headers
}

func (r *upstreamResponse) Body() io.ReadCloser {
	return r.body
}

// cancelOnClose releases the request context once the body is closed
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
