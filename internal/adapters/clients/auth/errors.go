package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// maxErrorBodySize limits how much of an error response body we read.
const maxErrorBodySize = 64 << 10

// errorBody is the auth server's JSON error document. Code, when present, is
// an S3 error code such as "SignatureDoesNotMatch".
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// TranslateHTTPError maps an auth server error response to an error the
// Action engine can classify. A recognised S3 code in the body wins;
// otherwise the status maps to a domain sentinel.
func TranslateHTTPError(resp *http.Response) error {
	eb := parseErrorBody(resp)

	msg := eb.Message
	if msg == "" {
		msg = eb.Detail
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if eb.Code != "" {
		return s3err.New(s3err.Code(eb.Code), msg)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%s: %w", msg, domain.ErrValidation)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", msg, domain.ErrForbidden)
	case resp.StatusCode == http.StatusTooManyRequests:
		return s3err.New(s3err.SlowDown, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w", msg, domain.ErrUnavailable)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}
}

func parseErrorBody(resp *http.Response) errorBody {
	if resp.Body == nil {
		return errorBody{}
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") && !strings.HasPrefix(ct, "application/problem+json") {
		return errorBody{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return errorBody{}
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return errorBody{}
	}
	return eb
}
