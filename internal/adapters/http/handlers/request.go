package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// Compile-time interface check.
var _ ports.Request = (*request)(nil)

// request adapts one inbound HTTP exchange to [ports.Request]. The Action
// reads it from its own goroutine and from collaborator goroutines, so the
// response side is guarded by a mutex.
type request struct {
	w      http.ResponseWriter
	r      *http.Request
	rc     *http.ResponseController
	bucket string
	key    string
	query  url.Values

	// readTimeout bounds each body read. Zero disables it.
	readTimeout time.Duration

	mu        sync.Mutex
	responded bool
}

func newRequest(w http.ResponseWriter, r *http.Request, bucket, key string, readTimeout time.Duration) *request {
	return &request{
		w:           w,
		r:           r,
		rc:          http.NewResponseController(w),
		bucket:      bucket,
		key:         key,
		query:       r.URL.Query(),
		readTimeout: readTimeout,
	}
}

func (q *request) Context() context.Context { return q.r.Context() }
func (q *request) Method() string           { return q.r.Method }
func (q *request) Bucket() string           { return q.bucket }
func (q *request) Key() string              { return q.key }
func (q *request) Query() url.Values        { return q.query }
func (q *request) Header() http.Header      { return q.r.Header }

func (q *request) Signed() domain.SignedRequest {
	return domain.SignedRequest{
		Method:      q.r.Method,
		Host:        q.r.Host,
		EscapedPath: q.r.URL.EscapedPath(),
		Query:       q.query,
		Header:      q.r.Header.Clone(),
	}
}

func (q *request) Body() io.Reader {
	return &deadlineReader{q: q}
}

func (q *request) ReadBody(ctx context.Context, limit int64) ([]byte, error) {
	var src io.Reader = q.Body()
	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(body)) > limit {
		return nil, ports.ErrBodyTooLarge
	}
	return body, nil
}

// Respond writes status, header and body. Only the first call reaches the
// client; a known body length is sent as Content-Length when the caller
// did not set one.
func (q *request) Respond(status int, header http.Header, body io.Reader) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.responded {
		return ports.ErrAlreadyResponded
	}
	q.responded = true

	h := q.w.Header()
	for k, v := range header {
		h[k] = v
	}
	if h.Get("Content-Length") == "" {
		if n, ok := bodyLength(body); ok {
			h.Set("Content-Length", strconv.FormatInt(n, 10))
		}
	}
	q.w.WriteHeader(status)

	if body == nil || q.r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(q.w, body); err != nil {
		return err
	}
	return nil
}

func (q *request) Responded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.responded
}

func (q *request) ClientConnected() bool {
	return q.r.Context().Err() == nil
}

// bodyLength reports the remaining length of in-memory bodies.
func bodyLength(body io.Reader) (int64, bool) {
	if l, ok := body.(interface{ Len() int }); ok {
		return int64(l.Len()), true
	}
	return 0, false
}

// deadlineReader arms the connection read deadline before every read, so a
// client that stops sending surfaces as ErrClientReadTimeout instead of
// holding the Action forever.
type deadlineReader struct {
	q *request
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	q := d.q
	if q.readTimeout > 0 {
		// Writers without deadline support (test recorders) read without one.
		if err := q.rc.SetReadDeadline(time.Now().Add(q.readTimeout)); err != nil &&
			!errors.Is(err, http.ErrNotSupported) {
			return 0, err
		}
	}

	n, err := q.r.Body.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ports.ErrClientReadTimeout
	}
	return n, err
}
