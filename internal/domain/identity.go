package domain

import (
	"net/http"
	"net/url"
)

// Anonymous is the account name used for unauthenticated requests when
// authentication is disabled.
const Anonymous = "anonymous"

// Identity is the authenticated principal behind a request.
type Identity struct {
	AccessKey string
	Account   string
}

// IsAnonymous reports whether the identity carries no account.
func (id *Identity) IsAnonymous() bool {
	return id == nil || id.Account == "" || id.Account == Anonymous
}

// AccountName returns the account, or Anonymous for a nil identity.
func (id *Identity) AccountName() string {
	if id.IsAnonymous() {
		return Anonymous
	}
	return id.Account
}

// SignedRequest is the subset of an inbound request needed to verify its
// signature. It is a value copy so authenticators never touch the live
// request.
type SignedRequest struct {
	Method      string
	Host        string
	EscapedPath string
	Query       url.Values
	Header      http.Header
}

// Permission is the access level an operation requires.
type Permission string

const (
	PermRead     Permission = "READ"
	PermWrite    Permission = "WRITE"
	PermReadACP  Permission = "READ_ACP"
	PermWriteACP Permission = "WRITE_ACP"
)

// AuthzRequest describes an authorization decision: may Identity perform
// Action (an "s3:..." name) needing Permission on Bucket/Key, given the
// resource owner and canned ACL loaded from metadata.
type AuthzRequest struct {
	Identity   *Identity
	Action     string
	Permission Permission
	Bucket     string
	Key        string
	Owner      string
	ACL        string
}
