package admission

import (
	"net"
	"net/http"
	"roomgate/internal/models"
	"strings"
)

// UnknownIdentity is the shared subject for callers without an identity.
const UnknownIdentity = "unknown"

// IdentityResolver extracts the caller identity from a trusted header set by
// the upstream proxy.
type IdentityResolver struct {
	header string
	policy string
}

// NewIdentityResolver creates a resolver reading header and applying policy
// (one of the models.UnknownIdentity* values) when it is absent.
func NewIdentityResolver(header, policy string) *IdentityResolver {
	if policy == "" {
		policy = models.UnknownIdentityShared
	}
	return &IdentityResolver{header: header, policy: policy}
}

// Header returns the name of the trusted identity header.
func (ir *IdentityResolver) Header() string {
	return ir.header
}

// Resolve returns the caller identity of r.
func (ir *IdentityResolver) Resolve(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(ir.header)); v != "" {
		return v, nil
	}

	switch ir.policy {
	case models.UnknownIdentityReject:
		return "", ErrIdentityRequired
	case models.UnknownIdentityRemoteAddr:
		if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
			return host, nil
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr, nil
		}
		return UnknownIdentity, nil
	default:
		return UnknownIdentity, nil
	}
}
