package logging

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/m-mizutani/masq"
)

// SensitiveHeaders is the canonical set of HTTP header names (lowercase) that
// carry credentials and must be redacted before logging. This set is shared
// between the masq layer and the HTTP middleware's RedactHeaders utility so
// the two cannot silently drift apart.
var SensitiveHeaders = map[string]bool{
	"authorization":        true,
	"x-amz-security-token": true,
	"cookie":               true,
}

// accessKeyPattern matches AWS-style access key IDs (AKIA..., ASIA...).
var accessKeyPattern = regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{12,}\b`)

// signaturePattern matches a SigV4 "Signature=<hex>" component or query
// parameter.
var signaturePattern = regexp.MustCompile(`(?i)(x-amz-)?signature=[0-9a-f]{64}`)

// credentialPattern matches "Credential=<key>/<scope>" from an Authorization
// header or presigned URL.
var credentialPattern = regexp.MustCompile(`(?i)(x-amz-)?credential=[^,&\s]+`)

// fixedRedactOptions is the number of masq options beyond the dynamic
// SensitiveHeaders set.
const fixedRedactOptions = 7

// newRedactAttr returns a masq-powered ReplaceAttr function. It redacts by
// field name for known sensitive fields and by regex for credential material
// that escapes call-site redaction.
func newRedactAttr() func([]string, slog.Attr) slog.Attr {
	opts := make([]masq.Option, 0, fixedRedactOptions+len(SensitiveHeaders))

	for name := range SensitiveHeaders {
		opts = append(opts, masq.WithFieldName(name))
	}

	opts = append(opts,
		masq.WithFieldName("password"),
		masq.WithFieldName("secret_key"),
		masq.WithFieldName("token"),

		// Variations like "secret_access_key", "secret_key_id".
		masq.WithFieldPrefix("secret_"),

		masq.WithRegex(accessKeyPattern),
		masq.WithRegex(signaturePattern),
		masq.WithRegex(credentialPattern),
	)

	return masq.New(opts...)
}

// redactHandler applies a ReplaceAttr function to handlers that do not
// accept one in their options.
type redactHandler struct {
	next    slog.Handler
	replace func([]string, slog.Attr) slog.Attr
	groups  []string
}

func newRedactHandler(next slog.Handler) *redactHandler {
	return &redactHandler{next: next, replace: newRedactAttr()}
}

func (h *redactHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h *redactHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.replace(h.groups, a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *redactHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.replace(h.groups, a)
	}
	return &redactHandler{next: h.next.WithAttrs(masked), replace: h.replace, groups: h.groups}
}

func (h *redactHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string(nil), h.groups...), name)
	return &redactHandler{next: h.next.WithGroup(name), replace: h.replace, groups: groups}
}
