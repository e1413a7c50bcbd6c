package principal

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/lumen-kb/knolens/internal/domain"
)

// Principal is the set of claims attached to a request by the identity
// provider. The retrieval core trusts these claims as given; token
// signatures are validated upstream.
type Principal struct {
	tenant string
	roles  []string
}

// New validates and creates a Principal. A principal with neither a
// tenant nor any role carries no usable access scope.
func New(tenant string, roles []string) (Principal, error) {
	cleaned := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r != "" {
			cleaned = append(cleaned, r)
		}
	}
	tenant = strings.TrimSpace(tenant)

	if tenant == "" && len(cleaned) == 0 {
		return Principal{}, domain.ErrUnauthorized
	}

	sort.Strings(cleaned)
	return Principal{tenant: tenant, roles: cleaned}, nil
}

// Tenant returns the tenant claim.
func (p Principal) Tenant() string { return p.tenant }

// Roles returns the sorted role claims.
func (p Principal) Roles() []string { return p.roles }

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.roles {
		if r == role {
			return true
		}
	}
	return false
}

// CanRead evaluates the deterministic visibility rule for a scope:
// tenant containment (empty scope tenant admits any tenant) and role
// set intersection (empty required set admits any principal).
func (p Principal) CanRead(s domain.Scope) bool {
	if s.Tenant != "" && s.Tenant != p.tenant {
		return false
	}
	if len(s.Roles) == 0 {
		return true
	}
	for _, required := range s.Roles {
		if p.HasRole(required) {
			return true
		}
	}
	return false
}

// Fingerprint is an order-independent digest of the effective access
// scope. It is part of every result cache key: an entry computed for
// one scope is never served to another.
func (p Principal) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(p.tenant))
	for _, r := range p.roles {
		h.Write([]byte{0})
		h.Write([]byte(r))
	}
	return hex.EncodeToString(h.Sum(nil))
}
