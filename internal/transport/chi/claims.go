package chi

import (
	"net/http"
	"strings"

	"github.com/lumen-kb/knolens/internal/domain/principal"
)

// Claims headers set by the identity provider in front of the service.
// The core trusts them as given and never re-validates token signatures.
const (
	headerTenant = "X-Knolens-Tenant"
	headerRoles  = "X-Knolens-Roles"
)

// principalFromRequest builds the caller's principal from the claims
// headers. Roles are comma-separated. A request with zero usable
// claims yields domain.ErrUnauthorized via principal.New.
func principalFromRequest(r *http.Request) (principal.Principal, error) {
	tenant := strings.TrimSpace(r.Header.Get(headerTenant))

	var roles []string
	if raw := r.Header.Get(headerRoles); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}

	return principal.New(tenant, roles)
}
