// Package multipart holds multipart upload and part entities.
package multipart

import (
	"crypto/md5" //nolint:gosec // S3 multipart ETags are defined over MD5.
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Part number bounds and minimum size for every part but the last.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
	MinPartSize   = 5 << 20
)

// Upload is an in-progress multipart upload.
type Upload struct {
	ID          string
	Bucket      string
	Key         string
	Owner       string
	ContentType string
	Initiated   time.Time
}

// Part is one uploaded part of an Upload.
type Part struct {
	UploadID   string
	Number     int
	OID        string
	Size       int64
	ETag       string
	ModifiedAt time.Time
}

// DefaultMaxUploads is the upload listing page size when the client does
// not ask for one.
const DefaultMaxUploads = 1000

// ListQuery selects a page of in-progress uploads. Uploads sort by key,
// then by ID, which follows initiation order. A page resumes after
// KeyMarker, or after UploadIDMarker within KeyMarker when both are set.
type ListQuery struct {
	Prefix         string
	Delimiter      string
	KeyMarker      string
	UploadIDMarker string
	MaxUploads     int
}

// Listing is one page of in-progress uploads.
type Listing struct {
	Uploads            []Upload
	CommonPrefixes     []string
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ValidPartNumber reports whether n is within the S3 part number range.
func ValidPartNumber(n int) bool {
	return n >= MinPartNumber && n <= MaxPartNumber
}

// CompletedPart is a part reference from a CompleteMultipartUpload body.
type CompletedPart struct {
	Number int
	ETag   string
}

// Completion failures.
var (
	ErrInvalidPart      = errors.New("invalid part")
	ErrInvalidPartOrder = errors.New("invalid part order")
	ErrPartTooSmall     = errors.New("part too small")
)

// Select matches the client's completion list against the stored parts and
// returns the parts to assemble, in order. Parts must be ascending, must
// exist with a matching ETag, and all but the last must meet MinPartSize.
func Select(requested []CompletedPart, stored []Part) ([]Part, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: no parts listed", ErrInvalidPart)
	}

	byNumber := make(map[int]Part, len(stored))
	for _, p := range stored {
		byNumber[p.Number] = p
	}

	out := make([]Part, 0, len(requested))
	prev := 0
	for i, rp := range requested {
		if rp.Number <= prev {
			return nil, fmt.Errorf("%w: part %d follows %d", ErrInvalidPartOrder, rp.Number, prev)
		}
		prev = rp.Number

		p, ok := byNumber[rp.Number]
		if !ok || strings.Trim(rp.ETag, `"`) != strings.Trim(p.ETag, `"`) {
			return nil, fmt.Errorf("%w: part %d", ErrInvalidPart, rp.Number)
		}
		if i < len(requested)-1 && p.Size < MinPartSize {
			return nil, fmt.Errorf("%w: part %d is %d bytes", ErrPartTooSmall, p.Number, p.Size)
		}
		out = append(out, p)
	}
	return out, nil
}

// CompositeETag computes the S3 multipart ETag: the MD5 of the concatenated
// binary part MD5s, suffixed with the part count.
func CompositeETag(parts []Part) string {
	h := md5.New() //nolint:gosec // S3 multipart ETags are defined over MD5.
	for _, p := range parts {
		raw, err := hex.DecodeString(strings.Trim(p.ETag, `"`))
		if err != nil {
			raw = []byte(p.ETag)
		}
		h.Write(raw)
	}
	return fmt.Sprintf("%s-%d", hex.EncodeToString(h.Sum(nil)), len(parts))
}
