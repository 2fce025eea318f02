package middleware

import (
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveHeaders carry SigV4 credentials, session tokens or
// customer-supplied encryption keys. Names are lowercase.
var sensitiveHeaders = map[string]bool{
	"authorization":        true,
	"cookie":               true,
	"x-amz-security-token": true,
	"x-amz-server-side-encryption-customer-key":             true,
	"x-amz-copy-source-server-side-encryption-customer-key": true,
}

// sensitiveParams are the presigned-URL query parameters. Names are lowercase.
var sensitiveParams = map[string]bool{
	"x-amz-signature":      true,
	"x-amz-credential":     true,
	"x-amz-security-token": true,
	"signature":            true,
	"awsaccesskeyid":       true,
}

// RedactHeaders returns the headers as log attributes sorted by name, with
// multiple values joined by commas. Sensitive values are replaced; an
// Authorization header keeps its scheme so the signing version stays visible.
func RedactHeaders(headers http.Header) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(headers))
	for _, key := range slices.Sorted(maps.Keys(headers)) {
		vals := headers[key]
		switch name := strings.ToLower(key); {
		case name == "authorization":
			attrs = append(attrs, slog.String(key, redactAuthorization(strings.Join(vals, ","))))
		case sensitiveHeaders[name]:
			attrs = append(attrs, slog.String(key, redacted))
		default:
			attrs = append(attrs, slog.String(key, strings.Join(vals, ",")))
		}
	}
	return attrs
}

func redactAuthorization(v string) string {
	scheme, _, found := strings.Cut(v, " ")
	if !found || scheme == "" {
		return redacted
	}
	return scheme + " " + redacted
}

// RedactQuery returns the encoded query with presigned-URL credentials
// replaced. Parameter names match case-insensitively.
func RedactQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	out := make(url.Values, len(q))
	for key, vals := range q {
		if sensitiveParams[strings.ToLower(key)] {
			out[key] = []string{redacted}
			continue
		}
		out[key] = vals
	}
	return out.Encode()
}
