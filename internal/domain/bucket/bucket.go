// Package bucket holds the bucket entity, its naming rules and canned ACLs.
package bucket

import (
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
)

// namePattern matches lowercase letters, digits, dots, and hyphens, starting
// and ending with a letter or digit, 3 to 63 characters long.
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// Bucket is the metadata record of a bucket.
type Bucket struct {
	Name      string
	Owner     string
	Region    string
	ACL       CannedACL
	CreatedAt time.Time
}

// ValidName implements the S3 naming rules for path-style buckets.
func ValidName(name string) bool {
	if !namePattern.MatchString(name) {
		return false
	}
	if strings.Contains(name, "..") || strings.Contains(name, ".-") || strings.Contains(name, "-.") {
		return false
	}
	return net.ParseIP(name) == nil
}

// CannedACL is one of the S3 canned access control lists.
type CannedACL string

const (
	ACLPrivate         CannedACL = "private"
	ACLPublicRead      CannedACL = "public-read"
	ACLPublicReadWrite CannedACL = "public-read-write"
	ACLAuthenticated   CannedACL = "authenticated-read"
)

// ParseACL returns the canned ACL for s. The empty string maps to private.
func ParseACL(s string) (CannedACL, bool) {
	switch CannedACL(s) {
	case "", ACLPrivate:
		return ACLPrivate, true
	case ACLPublicRead, ACLPublicReadWrite, ACLAuthenticated:
		return CannedACL(s), true
	default:
		return "", false
	}
}

// Grants reports whether the ACL lets a non-owner identity exercise perm.
// Owners are always allowed and are not evaluated here.
func (a CannedACL) Grants(id *domain.Identity, perm domain.Permission) bool {
	switch a {
	case ACLPublicReadWrite:
		return perm == domain.PermRead || perm == domain.PermWrite
	case ACLPublicRead:
		return perm == domain.PermRead
	case ACLAuthenticated:
		return perm == domain.PermRead && !id.IsAnonymous()
	default:
		return false
	}
}
