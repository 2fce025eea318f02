package ops

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/app/action"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

const headerRequestID = "X-Amz-Request-Id"

func baseHeader(a *action.Action, contentType string) http.Header {
	h := http.Header{}
	h.Set(headerRequestID, a.ID())
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}

// write hands the response to the request and completes the Action. A
// failed write stops it: the client is gone or something already answered.
func write(a *action.Action, status int, h http.Header, body io.Reader) action.Transition {
	if a.Request().Method() == http.MethodHead {
		body = nil
	}
	if err := a.Request().Respond(status, h, body); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ports.ErrAlreadyResponded) {
			level = slog.LevelError
		}
		a.Logger().Log(a.Context(), level, "writing response failed",
			slog.String("operation", a.Name()+".SendResponse"),
			slog.Int("status", status),
			slog.Any("error", err),
		)
		return action.Abort()
	}
	return action.Done()
}

// respondXML encodes doc and writes it with status.
func respondXML(a *action.Action, status int, h http.Header, doc any) action.Transition {
	body, err := dto.MarshalXML(doc)
	if err != nil {
		a.Logger().ErrorContext(a.Context(), "encoding response failed",
			slog.String("operation", a.Name()+".SendResponse"),
			slog.Any("error", err),
		)
		a.SetError(s3err.InternalError)
		return sendError(a)
	}
	if h == nil {
		h = baseHeader(a, dto.ContentTypeXML)
	}
	h.Set("Content-Type", dto.ContentTypeXML)
	return write(a, status, h, bytes.NewReader(body))
}

// respondEmpty writes a bodiless success.
func respondEmpty(a *action.Action, status int, h http.Header) action.Transition {
	if h == nil {
		h = baseHeader(a, "")
	}
	return write(a, status, h, nil)
}

// resource names the request target in error documents.
func resource(req ports.Request) string {
	return path.Join("/", req.Bucket(), req.Key())
}

// sendError writes the S3 error document for the recorded code. Retryable
// codes, including shutdown rejections, carry Retry-After.
func sendError(a *action.Action) action.Transition {
	code := a.Error()
	if code == "" {
		code = s3err.InternalError
	}

	h := dto.ErrorHeader(code, a.RetryAfter())
	h.Set(headerRequestID, a.ID())

	body, err := dto.MarshalXML(dto.NewError(code, resource(a.Request()), a.ID()))
	if err != nil {
		return write(a, code.Status(), h, nil)
	}
	return write(a, code.Status(), h, bytes.NewReader(body))
}

// sendProblem writes the recorded code as an RFC 9457 document, for the
// key-value API.
func sendProblem(a *action.Action, cause error) action.Transition {
	code := a.Error()
	if code == "" {
		code = s3err.InternalError
	}

	h := dto.ErrorHeader(code, a.RetryAfter())
	h.Set("Content-Type", dto.ContentProblem)
	h.Set(headerRequestID, a.ID())

	body, err := dto.MarshalProblem(dto.NewProblem(code, "/_kv"+resource(a.Request()), cause))
	if err != nil {
		return write(a, code.Status(), h, nil)
	}
	return write(a, code.Status(), h, bytes.NewReader(body))
}
