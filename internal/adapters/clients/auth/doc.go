// Package auth provides the gateway's ports.AuthClient implementations.
//
// Local verifies AWS Signature Version 4 Authorization headers against
// statically configured credentials and authorizes with owner and canned-ACL
// rules. Remote delegates both decisions to an external auth server over
// HTTP, translating its responses into domain and S3 errors.
package auth
