package core

import (
	"context"
	"io"
	"net/http"
)

// request is a simple Request implementation
type request struct {
	id         string
	method     string
	path       string
	url        string
	authority  string
	scheme     string
	remoteAddr string
	headers    map[string][]string
	body       io.ReadCloser
	ctx        context.Context
}

// RequestInfo carries the fields of a request built outside an HTTP server,
// for example from a gRPC decision call or the command line.
type RequestInfo struct {
	ID         string
	Method     string
	Path       string
	URL        string
	Authority  string
	Scheme     string
	RemoteAddr string
	Headers    map[string][]string
	Body       io.ReadCloser
}

// NewRequest creates a new request
func NewRequest(ctx context.Context, info RequestInfo) Request {
	if info.Headers == nil {
		info.Headers = make(map[string][]string)
	}
	if info.Body == nil {
		info.Body = http.NoBody
	}
	if info.URL == "" {
		info.URL = info.Path
	}
	return &request{
		id:         info.ID,
		method:     info.Method,
		path:       info.Path,
		url:        info.URL,
		authority:  info.Authority,
		scheme:     info.Scheme,
		remoteAddr: info.RemoteAddr,
		headers:    info.Headers,
		body:       info.Body,
		ctx:        ctx,
	}
}

func (r *request) ID() string                   { return r.id }
func (r *request) Method() string               { return r.method }
func (r *request) Path() string                 { return r.path }
func (r *request) URL() string                  { return r.url }
func (r *request) Authority() string            { return r.authority }
func (r *request) Scheme() string               { return r.scheme }
func (r *request) RemoteAddr() string           { return r.remoteAddr }
func (r *request) Headers() map[string][]string { return r.headers }
func (r *request) Body() io.ReadCloser          { return r.body }
func (r *request) Context() context.Context     { return r.ctx }
