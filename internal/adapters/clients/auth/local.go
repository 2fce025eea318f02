package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/s3err"
	"github.com/jsamuelsen11/s3-gateway/internal/platform/config"
	"github.com/jsamuelsen11/s3-gateway/internal/ports"
)

var _ ports.AuthClient = (*Local)(nil)

type secret struct {
	key     string
	account string
}

// Local authenticates against an in-memory credential table.
type Local struct {
	creds map[string]secret
	now   func() time.Time
}

// NewLocal builds a Local authenticator from configured credentials.
func NewLocal(creds []config.Credential) *Local {
	l := &Local{creds: make(map[string]secret, len(creds)), now: time.Now}
	for _, c := range creds {
		l.creds[c.AccessKey] = secret{key: c.SecretKey, account: c.Account}
	}
	return l
}

// Authenticate verifies the SigV4 signature of req. Requests without an
// Authorization header are anonymous.
func (l *Local) Authenticate(_ context.Context, req domain.SignedRequest) (*domain.Identity, error) {
	v := req.Header.Get("Authorization")
	if v == "" {
		return &domain.Identity{Account: domain.Anonymous}, nil
	}

	h, err := parseAuthHeader(v)
	if err != nil {
		return nil, err
	}

	sec, ok := l.creds[h.accessKey]
	if !ok {
		return nil, s3err.New(s3err.InvalidAccessKeyID, "")
	}

	if err := verifySignature(req, h, sec.key, l.now()); err != nil {
		return nil, err
	}
	return &domain.Identity{AccessKey: h.accessKey, Account: sec.account}, nil
}

// Authorize applies owner and canned-ACL rules. An empty Owner means the
// resource does not exist yet (bucket creation, service-level listing) and
// any authenticated identity may proceed.
func (l *Local) Authorize(_ context.Context, req domain.AuthzRequest) error {
	id := req.Identity
	switch {
	case req.Owner == "":
		if id.IsAnonymous() {
			return s3err.New(s3err.AccessDenied, "anonymous requests cannot perform "+req.Action)
		}
		return nil
	case !id.IsAnonymous() && id.Account == req.Owner:
		return nil
	case bucket.CannedACL(req.ACL).Grants(id, req.Permission):
		return nil
	default:
		return s3err.Wrap(s3err.AccessDenied,
			fmt.Errorf("%s on %s/%s for %s: %w", req.Action, req.Bucket, req.Key, id.AccountName(), domain.ErrForbidden))
	}
}
