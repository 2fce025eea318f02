package ports

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
)

var (
	// ErrClientReadTimeout is returned by Request.ReadBody when the client
	// stops sending the body for longer than the configured read timeout.
	ErrClientReadTimeout = errors.New("client read timeout")

	// ErrBodyTooLarge is returned by Request.ReadBody when the body exceeds
	// the caller's limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrAlreadyResponded is returned by Request.Respond after the first call.
	ErrAlreadyResponded = errors.New("response already sent")
)

// Request is the in-flight client request an Action operates on. The Action
// shares it with the HTTP adapter and never owns it.
type Request interface {
	// Context is canceled when the client goes away.
	Context() context.Context

	Method() string
	Bucket() string
	Key() string
	Query() url.Values
	Header() http.Header

	// Signed returns the parts of the request covered by a SigV4 signature.
	Signed() domain.SignedRequest

	// Body streams the request body. Stalls surface as ErrClientReadTimeout.
	Body() io.Reader

	// ReadBody reads the whole body, failing with ErrBodyTooLarge beyond limit.
	ReadBody(ctx context.Context, limit int64) ([]byte, error)

	// Respond writes the response exactly once. body may be nil.
	Respond(status int, header http.Header, body io.Reader) error

	Responded() bool

	// ClientConnected reports whether the client is still attached.
	ClientConnected() bool
}
