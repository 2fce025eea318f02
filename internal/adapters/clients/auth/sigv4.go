package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7/pkg/signer"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

const (
	sigV4Algorithm  = "AWS4-HMAC-SHA256"
	amzDateLayout   = "20060102T150405Z"
	scopeDateLayout = "20060102"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	maxClockSkew    = 15 * time.Minute
)

// authHeader is a parsed SigV4 Authorization header.
type authHeader struct {
	accessKey     string
	date          string
	region        string
	service       string
	signedHeaders []string
	signature     string
}

// parseAuthHeader parses
//
//	AWS4-HMAC-SHA256 Credential=AK/20260101/us-east-1/s3/aws4_request, SignedHeaders=host;x-amz-date, Signature=abcd
func parseAuthHeader(v string) (*authHeader, error) {
	rest, ok := strings.CutPrefix(v, sigV4Algorithm+" ")
	if !ok {
		return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "unsupported signing algorithm")
	}

	var h authHeader
	for part := range strings.SplitSeq(rest, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "malformed component "+k)
		}
		switch k {
		case "Credential":
			scope := strings.Split(val, "/")
			if len(scope) != 5 || scope[4] != "aws4_request" {
				return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "malformed credential scope")
			}
			h.accessKey, h.date, h.region, h.service = scope[0], scope[1], scope[2], scope[3]
		case "SignedHeaders":
			h.signedHeaders = strings.Split(val, ";")
		case "Signature":
			h.signature = val
		}
	}

	if h.accessKey == "" || len(h.signedHeaders) == 0 || h.signature == "" {
		return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "missing credential, signed headers or signature")
	}
	if h.service != "s3" {
		return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "credential scope must name the s3 service")
	}
	if !slices.Contains(h.signedHeaders, "host") {
		return nil, s3err.New(s3err.AuthorizationHeaderMalformed, "host must be signed")
	}
	return &h, nil
}

// requestTime returns the signing time from X-Amz-Date (or Date).
func requestTime(req domain.SignedRequest) (time.Time, error) {
	if v := req.Header.Get("X-Amz-Date"); v != "" {
		return time.Parse(amzDateLayout, v)
	}
	if v := req.Header.Get("Date"); v != "" {
		return time.Parse(time.RFC1123, v)
	}
	return time.Time{}, s3err.New(s3err.MissingSecurityHeader, "missing X-Amz-Date")
}

// canonicalRequest builds the SigV4 canonical request for req.
func canonicalRequest(req domain.SignedRequest, signedHeaders []string) string {
	payload := req.Header.Get("X-Amz-Content-Sha256")
	if payload == "" {
		payload = unsignedPayload
	}

	var headers strings.Builder
	for _, name := range signedHeaders {
		headers.WriteString(name)
		headers.WriteByte(':')
		if name == "host" {
			headers.WriteString(req.Host)
		} else {
			for i, v := range req.Header.Values(name) {
				if i > 0 {
					headers.WriteByte(',')
				}
				headers.WriteString(strings.Join(strings.Fields(v), " "))
			}
		}
		headers.WriteByte('\n')
	}

	path := req.EscapedPath
	if path == "" {
		path = "/"
	}

	return strings.Join([]string{
		req.Method,
		path,
		canonicalQuery(req.Query),
		headers.String(),
		strings.Join(signedHeaders, ";"),
		payload,
	}, "\n")
}

func canonicalQuery(q url.Values) string {
	return strings.ReplaceAll(q.Encode(), "+", "%20")
}

func stringToSign(canonical string, t time.Time, region, service string) string {
	sum := sha256.Sum256([]byte(canonical))
	scope := strings.Join([]string{t.Format(scopeDateLayout), region, service, "aws4_request"}, "/")
	return strings.Join([]string{sigV4Algorithm, t.Format(amzDateLayout), scope, hex.EncodeToString(sum[:])}, "\n")
}

// verifySignature checks req against secret. now is injected for tests.
func verifySignature(req domain.SignedRequest, h *authHeader, secret string, now time.Time) error {
	t, err := requestTime(req)
	if err != nil {
		var s3e *s3err.Error
		if errors.As(err, &s3e) {
			return err
		}
		return s3err.Wrap(s3err.AuthorizationHeaderMalformed, err)
	}
	if t.Format(scopeDateLayout) != h.date {
		return s3err.New(s3err.AuthorizationHeaderMalformed, "credential date does not match X-Amz-Date")
	}
	if skew := now.Sub(t); skew > maxClockSkew || skew < -maxClockSkew {
		return s3err.New(s3err.AccessDenied, fmt.Sprintf("request time too skewed (%s)", skew.Round(time.Second)))
	}

	sts := stringToSign(canonicalRequest(req, h.signedHeaders), t, h.region, h.service)
	want := signer.PostPresignSignatureV4(sts, t, secret, h.region)

	if subtle.ConstantTimeCompare([]byte(want), []byte(h.signature)) != 1 {
		return s3err.New(s3err.SignatureDoesNotMatch, "")
	}
	return nil
}
