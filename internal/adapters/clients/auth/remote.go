package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/httpclient"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

var (
	_ ports.AuthClient    = (*Remote)(nil)
	_ ports.HealthChecker = (*Remote)(nil)
)

// Remote is the outbound adapter for the auth server. Every call goes
// through httpclient.Client, which supplies circuit breaking, retry, rate
// limiting and tracing.
type Remote struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewRemote creates a Remote backed by client.
func NewRemote(client *httpclient.Client, logger *slog.Logger) *Remote {
	return &Remote{client: client, logger: logger}
}

type authenticateRequest struct {
	Method  string              `json:"method"`
	Host    string              `json:"host"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string][]string `json:"headers"`
}

type identityResponse struct {
	AccessKey string `json:"access_key"`
	Account   string `json:"account"`
}

type authorizeRequest struct {
	AccessKey  string `json:"access_key,omitempty"`
	Account    string `json:"account"`
	Action     string `json:"action"`
	Permission string `json:"permission"`
	Bucket     string `json:"bucket,omitempty"`
	Key        string `json:"key,omitempty"`
	Owner      string `json:"owner,omitempty"`
	ACL        string `json:"acl,omitempty"`
}

// Authenticate sends POST /v1/authenticate with the signed request parts.
func (r *Remote) Authenticate(ctx context.Context, req domain.SignedRequest) (*domain.Identity, error) {
	body := authenticateRequest{
		Method:  req.Method,
		Host:    req.Host,
		Path:    req.EscapedPath,
		Query:   req.Query,
		Headers: req.Header,
	}

	var resp identityResponse
	if err := r.do(ctx, "/v1/authenticate", http.StatusOK, body, &resp); err != nil {
		return nil, err
	}
	if resp.Account == "" {
		resp.Account = domain.Anonymous
	}
	return &domain.Identity{AccessKey: resp.AccessKey, Account: resp.Account}, nil
}

// Authorize sends POST /v1/authorize. The server answers 204 to allow.
func (r *Remote) Authorize(ctx context.Context, req domain.AuthzRequest) error {
	body := authorizeRequest{
		Account:    req.Identity.AccountName(),
		Action:     req.Action,
		Permission: string(req.Permission),
		Bucket:     req.Bucket,
		Key:        req.Key,
		Owner:      req.Owner,
		ACL:        req.ACL,
	}
	if req.Identity != nil {
		body.AccessKey = req.Identity.AccessKey
	}
	return r.do(ctx, "/v1/authorize", http.StatusNoContent, body, nil)
}

// Name identifies the auth server in health reports.
func (r *Remote) Name() string { return r.client.Name() }

// HealthCheck reports the auth server's circuit breaker state.
func (r *Remote) HealthCheck(ctx context.Context) error { return r.client.HealthCheck(ctx) }

func (r *Remote) do(ctx context.Context, path string, wantStatus int, reqBody, respBody any) error {
	resp, err := r.client.PostJSON(ctx, path, reqBody)
	if resp != nil {
		defer r.closeBody(ctx, resp)
	}
	if err != nil {
		// Retries exhausted on a retryable status still carry a response.
		if resp != nil {
			return TranslateHTTPError(resp)
		}
		r.logger.ErrorContext(ctx, "auth server request failed",
			slog.String("operation", "auth.Remote"),
			slog.String("path", path),
			slog.Any("error", err),
		)
		return fmt.Errorf("POST %s: %w: %w", path, domain.ErrUnavailable, err)
	}

	if resp.StatusCode != wantStatus {
		return TranslateHTTPError(resp)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}
	}
	return nil
}

func (r *Remote) closeBody(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		r.logger.WarnContext(ctx, "failed to close response body", slog.Any("error", err))
	}
}
