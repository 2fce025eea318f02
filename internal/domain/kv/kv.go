// Package kv holds the key-value index entities exposed by the gateway's
// key-value API.
package kv

import (
	"regexp"
	"time"
)

// MaxValueSize bounds a single value.
const MaxValueSize = 1 << 20

var indexPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// Entry is one key/value pair in an index.
type Entry struct {
	Index      string
	Key        string
	Value      []byte
	ModifiedAt time.Time
}

// ValidIndex reports whether name is an acceptable index name.
func ValidIndex(name string) bool {
	return indexPattern.MatchString(name)
}
