// Package tag holds tag-set rules shared by bucket and object tagging.
package tag

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
)

// Tag-set limits.
const (
	MaxObjectTags  = 10
	MaxBucketTags  = 50
	MaxKeyLength   = 128
	MaxValueLength = 256
)

// Tag is a single key/value pair in request order.
type Tag struct {
	Key   string
	Value string
}

// Set is a validated tag set keyed by tag key.
type Set map[string]string

// Build validates tags against limit and returns them as a Set. Duplicate
// keys, reserved "aws:" keys, and over-long keys or values are rejected with
// a *domain.ValidationError.
func Build(tags []Tag, limit int) (Set, error) {
	fields := make(map[string]string)

	if len(tags) > limit {
		fields["TagSet"] = fmt.Sprintf("at most %d tags allowed, got %d", limit, len(tags))
	}

	set := make(Set, len(tags))
	for _, t := range tags {
		n := utf8.RuneCountInString(t.Key)
		switch {
		case n == 0 || n > MaxKeyLength:
			fields["Key"] = fmt.Sprintf("tag key length must be 1..%d", MaxKeyLength)
		case strings.HasPrefix(strings.ToLower(t.Key), "aws:"):
			fields["Key"] = fmt.Sprintf("tag key %q uses the reserved aws: prefix", t.Key)
		case utf8.RuneCountInString(t.Value) > MaxValueLength:
			fields["Value"] = fmt.Sprintf("tag value for %q exceeds %d characters", t.Key, MaxValueLength)
		}
		if _, dup := set[t.Key]; dup {
			fields["Key"] = fmt.Sprintf("duplicate tag key %q", t.Key)
		}
		set[t.Key] = t.Value
	}

	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	return set, nil
}

// Sorted returns the set as tags ordered by key.
func (s Set) Sorted() []Tag {
	keys := slices.Sorted(maps.Keys(s))
	out := make([]Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, Tag{Key: k, Value: s[k]})
	}
	return out
}

// Clone returns an independent copy; a nil set stays nil.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}
