// Package object holds the object entity, key rules, byte ranges and
// listing types.
package object

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxKeyLength is the longest object key accepted, in bytes.
const MaxKeyLength = 1024

// Object is the metadata record of a stored object. OID names the payload in
// the backend; a new OID is allocated for every write so the previous payload
// stays intact until the new metadata commits.
type Object struct {
	Bucket      string
	Key         string
	OID         string
	Size        int64
	ETag        string
	ContentType string
	ACL         string
	UserMeta    map[string]string
	Tags        map[string]string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// ValidKey enforces basic S3 object key constraints: non-empty, at most
// MaxKeyLength bytes, and no control characters.
func ValidKey(key string) bool {
	if key == "" || len(key) > MaxKeyLength {
		return false
	}
	return !strings.ContainsFunc(key, func(c rune) bool {
		return c < 0x20 || c == 0x7f
	})
}

// ErrInvalidRange reports a Range header that cannot be satisfied.
var ErrInvalidRange = errors.New("invalid range")

// ByteRange is an inclusive byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// ContentRange formats the Content-Range header value for an object of size.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange parses a single-range "bytes=" header against an object of the
// given size. An empty header returns nil. Multi-range requests are rejected.
func ParseRange(header string, size int64) (*ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}

	switch {
	case first == "":
		// Suffix range: last N bytes.
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
		if n > size {
			n = size
		}
		return &ByteRange{Start: size - n, End: size - 1}, nil

	default:
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 || start >= size {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
		}
		end := size - 1
		if last != "" {
			end, err = strconv.ParseInt(last, 10, 64)
			if err != nil || end < start {
				return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
			}
			end = min(end, size-1)
		}
		return &ByteRange{Start: start, End: end}, nil
	}
}

// ListQuery selects objects for a bucket listing.
type ListQuery struct {
	Prefix    string
	Delimiter string
	After     string
	MaxKeys   int
}

// DefaultMaxKeys is the listing page size when the client does not ask for one.
const DefaultMaxKeys = 1000

// Listing is one page of a bucket listing.
type Listing struct {
	Objects        []Object
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// Payload describes bytes stored in the backend.
type Payload struct {
	Size int64
	MD5  string
}
