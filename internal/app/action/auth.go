package action

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

// AuthEnabled reports whether this Action authenticates its caller.
func (a *Action) AuthEnabled() bool { return a.authEnabled }

// Authorize registers the authorization step. build runs when the step is
// reached, so it can use metadata loaded by earlier steps. Nothing is
// registered when authentication is off or SkipAuthorize was passed.
func (r *Registrar) Authorize(build func(a *Action) domain.AuthzRequest) {
	if !r.a.authEnabled || r.a.skipAuthorize {
		return
	}
	r.Add(authorizeStep, func(_ context.Context, a *Action) Transition {
		client := a.auth()
		if client == nil {
			return Fail(s3err.InternalError)
		}
		req := build(a)
		if req.Identity == nil {
			req.Identity = a.Identity()
		}

		a.authInFlight = true
		return Await(a, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.Authorize(ctx, req)
		}, func(_ struct{}, err error) Transition {
			a.authInFlight = false
			if err != nil {
				a.logger.InfoContext(a.ctx, "authorization denied",
					slog.String("operation", "Action.Authorize"),
					slog.String("account", req.Identity.AccountName()),
					slog.String("s3_action", req.Action),
					slog.Any("error", err),
				)
				return Fail(s3err.FromError(err, s3err.AccessDenied))
			}
			return Next()
		})
	})
}

func authenticate(_ context.Context, a *Action) Transition {
	client := a.auth()
	if client == nil {
		return Fail(s3err.InternalError)
	}
	signed := a.req.Signed()

	a.authInFlight = true
	return Await(a, func(ctx context.Context) (*domain.Identity, error) {
		return client.Authenticate(ctx, signed)
	}, func(id *domain.Identity, err error) Transition {
		a.authInFlight = false
		if err != nil {
			a.logger.InfoContext(a.ctx, "authentication failed",
				slog.String("operation", "Action.Authenticate"),
				slog.Any("error", err),
			)
			return Fail(s3err.FromError(err, s3err.InvalidAccessKeyID))
		}
		a.identity = id
		a.span.SetAttributes(attribute.String("s3.account", id.AccountName()))
		return Next()
	})
}

func (a *Action) auth() ports.AuthClient {
	if a.authClient == nil && a.authFactory != nil {
		a.authClient = a.authFactory(a.req)
	}
	if a.authClient == nil {
		a.logger.ErrorContext(a.ctx, "no auth client configured",
			slog.String("operation", "Action.auth"),
		)
	}
	return a.authClient
}
