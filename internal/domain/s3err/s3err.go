// Package s3err defines the S3 error classification shared by the Action
// engine and the operations built on it. A Code is the classification an
// Action carries; the response step maps it to a status and an XML error
// document.
package s3err

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
)

// Code is an S3 error code such as "NoSuchKey".
type Code string

// Error codes produced by the gateway.
const (
	AccessDenied                 Code = "AccessDenied"
	AuthorizationHeaderMalformed Code = "AuthorizationHeaderMalformed"
	BadDigest                    Code = "BadDigest"
	BucketAlreadyExists          Code = "BucketAlreadyExists"
	BucketAlreadyOwnedByYou      Code = "BucketAlreadyOwnedByYou"
	BucketNotEmpty               Code = "BucketNotEmpty"
	ClientClosedRequest          Code = "ClientClosedRequest"
	EntityTooLarge               Code = "EntityTooLarge"
	EntityTooSmall               Code = "EntityTooSmall"
	IncompleteBody               Code = "IncompleteBody"
	InternalError                Code = "InternalError"
	InvalidAccessKeyID           Code = "InvalidAccessKeyId"
	InvalidArgument              Code = "InvalidArgument"
	InvalidBucketName            Code = "InvalidBucketName"
	InvalidKeyValueIndex         Code = "InvalidIndexName"
	InvalidObjectName            Code = "InvalidObjectName"
	InvalidPart                  Code = "InvalidPart"
	InvalidPartOrder             Code = "InvalidPartOrder"
	InvalidRange                 Code = "InvalidRange"
	InvalidRequest               Code = "InvalidRequest"
	InvalidTag                   Code = "InvalidTag"
	MalformedACLError            Code = "MalformedACLError"
	MalformedXML                 Code = "MalformedXML"
	MethodNotAllowed             Code = "MethodNotAllowed"
	MissingContentLength         Code = "MissingContentLength"
	MissingSecurityHeader        Code = "MissingSecurityHeader"
	NoSuchBucket                 Code = "NoSuchBucket"
	NoSuchKey                    Code = "NoSuchKey"
	NoSuchKeyValue               Code = "NoSuchKeyValue"
	NoSuchTagSet                 Code = "NoSuchTagSet"
	NoSuchUpload                 Code = "NoSuchUpload"
	NotImplemented               Code = "NotImplemented"
	RequestTimeout               Code = "RequestTimeout"
	ServiceUnavailable           Code = "ServiceUnavailable"
	SignatureDoesNotMatch        Code = "SignatureDoesNotMatch"
	SlowDown                     Code = "SlowDown"
)

type detail struct {
	status  int
	message string
}

var details = map[Code]detail{
	AccessDenied:                 {http.StatusForbidden, "Access Denied."},
	AuthorizationHeaderMalformed: {http.StatusBadRequest, "The authorization header you provided is invalid."},
	BadDigest:                    {http.StatusBadRequest, "The Content-MD5 you specified did not match what we received."},
	BucketAlreadyExists:          {http.StatusConflict, "The requested bucket name is not available."},
	BucketAlreadyOwnedByYou:      {http.StatusConflict, "Your previous request to create the named bucket succeeded and you already own it."},
	BucketNotEmpty:               {http.StatusConflict, "The bucket you tried to delete is not empty."},
	ClientClosedRequest:          {499, "The client closed the connection before the request completed."},
	EntityTooLarge:               {http.StatusBadRequest, "Your proposed upload exceeds the maximum allowed object size."},
	EntityTooSmall:               {http.StatusBadRequest, "Your proposed upload is smaller than the minimum allowed object size."},
	IncompleteBody:               {http.StatusBadRequest, "You did not provide the number of bytes specified by the Content-Length HTTP header."},
	InternalError:                {http.StatusInternalServerError, "We encountered an internal error. Please try again."},
	InvalidAccessKeyID:           {http.StatusForbidden, "The AWS access key Id you provided does not exist in our records."},
	InvalidArgument:              {http.StatusBadRequest, "Invalid Argument."},
	InvalidBucketName:            {http.StatusBadRequest, "The specified bucket is not valid."},
	InvalidKeyValueIndex:         {http.StatusBadRequest, "The specified index name is not valid."},
	InvalidObjectName:            {http.StatusBadRequest, "The specified key is not valid."},
	InvalidPart:                  {http.StatusBadRequest, "One or more of the specified parts could not be found."},
	InvalidPartOrder:             {http.StatusBadRequest, "The list of parts was not in ascending order."},
	InvalidRange:                 {http.StatusRequestedRangeNotSatisfiable, "The requested range cannot be satisfied."},
	InvalidRequest:               {http.StatusBadRequest, "Invalid Request."},
	InvalidTag:                   {http.StatusBadRequest, "The tag provided was not a valid tag."},
	MalformedACLError:            {http.StatusBadRequest, "The XML you provided was not well-formed or did not validate against our published schema."},
	MalformedXML:                 {http.StatusBadRequest, "The XML you provided was not well-formed or did not validate against our published schema."},
	MethodNotAllowed:             {http.StatusMethodNotAllowed, "The specified method is not allowed against this resource."},
	MissingContentLength:         {http.StatusLengthRequired, "You must provide the Content-Length HTTP header."},
	MissingSecurityHeader:        {http.StatusBadRequest, "Your request is missing a required header."},
	NoSuchBucket:                 {http.StatusNotFound, "The specified bucket does not exist."},
	NoSuchKey:                    {http.StatusNotFound, "The specified key does not exist."},
	NoSuchKeyValue:               {http.StatusNotFound, "The specified key does not exist in the index."},
	NoSuchTagSet:                 {http.StatusNotFound, "There is no tag set associated with the bucket."},
	NoSuchUpload:                 {http.StatusNotFound, "The specified multipart upload does not exist."},
	NotImplemented:               {http.StatusNotImplemented, "A header you provided implies functionality that is not implemented."},
	RequestTimeout:               {http.StatusBadRequest, "Your socket connection to the server was not read from or written to within the timeout period."},
	ServiceUnavailable:           {http.StatusServiceUnavailable, "Reduce your request rate."},
	SignatureDoesNotMatch:        {http.StatusForbidden, "The request signature we calculated does not match the signature you provided."},
	SlowDown:                     {http.StatusServiceUnavailable, "Please reduce your request rate."},
}

// Status returns the HTTP status for the code. Unknown codes map to 500.
func (c Code) Status() int {
	if d, ok := details[c]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

// Message returns the default human-readable message for the code.
func (c Code) Message() string {
	if d, ok := details[c]; ok {
		return d.message
	}
	return details[InternalError].message
}

// Retryable reports whether clients should retry after a Retry-After delay.
func (c Code) Retryable() bool {
	return c == ServiceUnavailable || c == SlowDown
}

func (c Code) String() string { return string(c) }

// Error is an error carrying an S3 classification. Collaborators return it
// when they know the precise code (for example an auth server rejecting a
// signature); it wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New returns an *Error for code with an optional message override.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an *Error for code wrapping err.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// FromError classifies err. Typed *Error values keep their code; domain
// sentinels map to their closest S3 equivalent; context errors become
// timeouts; everything else is InternalError. fallback, when non-empty,
// replaces the code used for domain.ErrNotFound.
func FromError(err error, fallback Code) Code {
	if err == nil {
		return ""
	}

	var s3 *Error
	if errors.As(err, &s3) {
		return s3.Code
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		if fallback != "" {
			return fallback
		}
		return NoSuchKey
	case errors.Is(err, domain.ErrValidation):
		return InvalidArgument
	case errors.Is(err, domain.ErrForbidden):
		return AccessDenied
	case errors.Is(err, domain.ErrConflict):
		return BucketAlreadyExists
	case errors.Is(err, domain.ErrUnavailable):
		return ServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return RequestTimeout
	case errors.Is(err, context.Canceled):
		return ClientClosedRequest
	default:
		return InternalError
	}
}
