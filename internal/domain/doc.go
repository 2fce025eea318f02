// Package domain contains shared domain types used across entity sub-packages.
// Entity-specific types live in sub-packages (domain/bucket, domain/object,
// domain/tag, domain/multipart, domain/kv). This root package holds sentinel
// errors, validation types, and the identity and request types exchanged
// with authentication collaborators.
package domain
