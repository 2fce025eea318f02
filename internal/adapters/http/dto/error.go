package dto

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
)

// Error is the S3 error document.
type Error struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId,omitempty"`
}

// NewError builds the error document for code.
func NewError(code s3err.Code, resource, requestID string) Error {
	return Error{
		Code:      code.String(),
		Message:   code.Message(),
		Resource:  resource,
		RequestID: requestID,
	}
}

// ErrorHeader returns the response headers for an S3 error. Retryable codes
// carry Retry-After when retryAfter is positive.
func ErrorHeader(code s3err.Code, retryAfter int) http.Header {
	h := http.Header{}
	h.Set("Content-Type", ContentTypeXML)
	if code.Retryable() && retryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(retryAfter))
	}
	return h
}

// WriteError writes an S3 error document for failures detected before an
// Action exists (no route, method not allowed, admission control).
func WriteError(w http.ResponseWriter, r *http.Request, code s3err.Code, retryAfter int) {
	for k, v := range ErrorHeader(code, retryAfter) {
		w.Header()[k] = v
	}
	w.WriteHeader(code.Status())
	if r.Method == http.MethodHead {
		return
	}

	body, err := MarshalXML(NewError(code, r.URL.Path, w.Header().Get("X-Request-ID")))
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response",
			slog.Any("error", err),
		)
		return
	}
	_, _ = w.Write(body)
}

// Problem is an RFC 9457 Problem Details document. The key-value API
// answers with it instead of the S3 XML error.
type Problem struct {
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Status   int             `json:"status"`
	Code     string          `json:"code,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Instance string          `json:"instance,omitempty"`
	Errors   []ProblemDetail `json:"errors,omitempty"`
}

// ProblemDetail is a single field-level failure within a Problem.
type ProblemDetail struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// NewProblem builds a Problem for code. A *domain.ValidationError in err
// contributes per-field details.
func NewProblem(code s3err.Code, instance string, err error) Problem {
	p := Problem{
		Type:     "about:blank",
		Title:    http.StatusText(code.Status()),
		Status:   code.Status(),
		Code:     code.String(),
		Detail:   code.Message(),
		Instance: instance,
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		p.Errors = validationFieldsToDetails(verr.Fields)
	}
	return p
}

// MarshalProblem encodes p as JSON.
func MarshalProblem(p Problem) ([]byte, error) {
	return json.Marshal(p)
}

// validationFieldsToDetails converts domain validation fields to sorted
// ProblemDetail entries.
func validationFieldsToDetails(fields map[string]string) []ProblemDetail {
	details := make([]ProblemDetail, 0, len(fields))
	for field, msg := range fields {
		details = append(details, ProblemDetail{
			Location: "body." + field,
			Message:  msg,
		})
	}
	sort.Slice(details, func(i, j int) bool {
		return details[i].Location < details[j].Location
	})
	return details
}
