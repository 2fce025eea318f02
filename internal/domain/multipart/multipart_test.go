package multipart_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
)

func stored() []multipart.Part {
	return []multipart.Part{
		{Number: 1, ETag: "aaaa", Size: multipart.MinPartSize},
		{Number: 2, ETag: "bbbb", Size: multipart.MinPartSize},
		{Number: 3, ETag: "cccc", Size: 10},
	}
}

func TestSelect_OK(t *testing.T) {
	t.Parallel()

	parts, err := multipart.Select([]multipart.CompletedPart{
		{Number: 1, ETag: `"aaaa"`},
		{Number: 3, ETag: "cccc"},
	}, stored())
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}
	if len(parts) != 2 || parts[0].Number != 1 || parts[1].Number != 3 {
		t.Errorf("Select() = %+v, want parts 1 and 3", parts)
	}
}

func TestSelect_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  []multipart.CompletedPart
		want error
	}{
		{"empty", nil, multipart.ErrInvalidPart},
		{"descending", []multipart.CompletedPart{{Number: 2, ETag: "bbbb"}, {Number: 1, ETag: "aaaa"}}, multipart.ErrInvalidPartOrder},
		{"missing", []multipart.CompletedPart{{Number: 4, ETag: "dddd"}}, multipart.ErrInvalidPart},
		{"etag mismatch", []multipart.CompletedPart{{Number: 1, ETag: "zzzz"}}, multipart.ErrInvalidPart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := multipart.Select(tt.req, stored()); !errors.Is(err, tt.want) {
				t.Errorf("Select() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSelect_SmallNonLastPart(t *testing.T) {
	t.Parallel()

	parts := []multipart.Part{{Number: 1, ETag: "aa", Size: 1}, {Number: 2, ETag: "bb", Size: 1}}
	_, err := multipart.Select([]multipart.CompletedPart{{Number: 1, ETag: "aa"}, {Number: 2, ETag: "bb"}}, parts)
	if !errors.Is(err, multipart.ErrPartTooSmall) {
		t.Errorf("Select() error = %v, want ErrPartTooSmall", err)
	}
}

func TestCompositeETag(t *testing.T) {
	t.Parallel()

	etag := multipart.CompositeETag([]multipart.Part{{ETag: "d41d8cd98f00b204e9800998ecf8427e"}, {ETag: "d41d8cd98f00b204e9800998ecf8427e"}})
	if !strings.HasSuffix(etag, "-2") {
		t.Errorf("CompositeETag() = %q, want -2 suffix", etag)
	}
	if len(etag) != 32+2 {
		t.Errorf("CompositeETag() length = %d, want 34", len(etag))
	}
}

func TestValidPartNumber(t *testing.T) {
	t.Parallel()

	for n, want := range map[int]bool{0: false, 1: true, 10000: true, 10001: false} {
		if got := multipart.ValidPartNumber(n); got != want {
			t.Errorf("ValidPartNumber(%d) = %v, want %v", n, got, want)
		}
	}
}
