// Package actiontest provides an in-memory ports.Request for exercising
// Actions and operations without an HTTP server.
package actiontest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// Compile-time interface check.
var _ ports.Request = (*Request)(nil)

// Request records the response written to it. Safe for concurrent use.
type Request struct {
	ctx    context.Context
	cancel context.CancelFunc

	method string
	bucket string
	key    string
	query  url.Values
	header http.Header
	body   []byte

	readErr     error
	blocked     chan struct{}
	reading     chan struct{}
	readingOnce sync.Once
	gone        atomic.Bool

	mu         sync.Mutex
	responses  int
	status     int
	respHeader http.Header
	respBody   []byte
}

// NewRequest returns a connected request for method on bucket/key.
func NewRequest(method, bucket, key string) *Request {
	ctx, cancel := context.WithCancel(context.Background())
	return &Request{
		ctx:    ctx,
		cancel: cancel,
		method: method,
		bucket: bucket,
		key:    key,
		query:  url.Values{},
		header: http.Header{},
	}
}

// WithBody sets the request body.
func (r *Request) WithBody(b []byte) *Request {
	r.body = b
	r.header.Set("Content-Length", strconv.Itoa(len(b)))
	return r
}

// WithQuery sets a query parameter.
func (r *Request) WithQuery(key, value string) *Request {
	r.query.Set(key, value)
	return r
}

// WithHeader sets a request header.
func (r *Request) WithHeader(key, value string) *Request {
	r.header.Set(key, value)
	return r
}

// WithReadError makes body reads fail with err.
func (r *Request) WithReadError(err error) *Request {
	r.readErr = err
	return r
}

// BlockReads makes body reads wait until Unblock or cancellation.
func (r *Request) BlockReads() *Request {
	r.blocked = make(chan struct{})
	r.reading = make(chan struct{})
	return r
}

// Reading returns a channel closed once a read blocks. Only valid after
// BlockReads.
func (r *Request) Reading() <-chan struct{} { return r.reading }

// Unblock releases reads held by BlockReads.
func (r *Request) Unblock() { close(r.blocked) }

// Disconnect simulates the client going away.
func (r *Request) Disconnect() {
	r.gone.Store(true)
	r.cancel()
}

func (r *Request) Context() context.Context { return r.ctx }
func (r *Request) Method() string           { return r.method }
func (r *Request) Bucket() string           { return r.bucket }
func (r *Request) Key() string              { return r.key }
func (r *Request) Query() url.Values        { return r.query }
func (r *Request) Header() http.Header      { return r.header }
func (r *Request) ClientConnected() bool    { return !r.gone.Load() }

func (r *Request) Signed() domain.SignedRequest {
	path := "/" + r.bucket
	if r.key != "" {
		path += "/" + r.key
	}
	return domain.SignedRequest{
		Method:      r.method,
		Host:        "localhost",
		EscapedPath: path,
		Query:       r.query,
		Header:      r.header,
	}
}

func (r *Request) Body() io.Reader {
	return &reader{r: r, buf: bytes.NewReader(r.body)}
}

func (r *Request) ReadBody(ctx context.Context, limit int64) ([]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(r.body)) > limit {
		return nil, ports.ErrBodyTooLarge
	}
	return bytes.Clone(r.body), nil
}

func (r *Request) wait(ctx context.Context) error {
	if r.blocked != nil {
		r.readingOnce.Do(func() { close(r.reading) })
		select {
		case <-r.blocked:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.readErr
}

func (r *Request) Respond(status int, header http.Header, body io.Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses++
	if r.responses > 1 {
		return ports.ErrAlreadyResponded
	}
	r.status = status
	r.respHeader = header.Clone()
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		r.respBody = b
	}
	return nil
}

func (r *Request) Responded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responses > 0
}

// Responses returns how many times Respond was called.
func (r *Request) Responses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.responses
}

// Status returns the status of the first response.
func (r *Request) Status() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ResponseHeader returns the headers of the first response.
func (r *Request) ResponseHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respHeader
}

// ResponseBody returns the body of the first response.
func (r *Request) ResponseBody() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.respBody
}

type reader struct {
	r   *Request
	buf *bytes.Reader
}

func (b *reader) Read(p []byte) (int, error) {
	if err := b.r.wait(b.r.ctx); err != nil {
		return 0, err
	}
	return b.buf.Read(p)
}
