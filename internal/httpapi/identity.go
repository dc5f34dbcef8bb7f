package httpapi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/sentra/internal/retrieval"
)

// Identity headers set by the authenticating proxy in front of sentra.
const (
	HeaderUser    = "X-Sentra-User"
	HeaderRole    = "X-Sentra-Role"
	HeaderLevel   = "X-Sentra-Level"
	HeaderDept    = "X-Sentra-Dept"
	HeaderProject = "X-Sentra-Project"
)

// IdentityResolver resolves the requester identity for a request.
type IdentityResolver interface {
	Resolve(c echo.Context) (retrieval.Identity, error)
}

// HeaderIdentityResolver reads identity attributes from trusted proxy
// headers. Deployments without a proxy should replace this with a resolver
// backed by their session layer.
type HeaderIdentityResolver struct{}

// Resolve extracts and validates the identity headers.
func (HeaderIdentityResolver) Resolve(c echo.Context) (retrieval.Identity, error) {
	h := c.Request().Header

	id := retrieval.Identity{
		UserID:  strings.TrimSpace(h.Get(HeaderUser)),
		Role:    strings.TrimSpace(h.Get(HeaderRole)),
		Dept:    strings.TrimSpace(h.Get(HeaderDept)),
		Project: strings.TrimSpace(h.Get(HeaderProject)),
	}

	var missing []string
	if id.UserID == "" {
		missing = append(missing, HeaderUser)
	}
	if id.Role == "" {
		missing = append(missing, HeaderRole)
	}
	if id.Dept == "" {
		missing = append(missing, HeaderDept)
	}
	if id.Project == "" {
		missing = append(missing, HeaderProject)
	}
	if len(missing) > 0 {
		return retrieval.Identity{}, fmt.Errorf("missing identity headers: %s", strings.Join(missing, ", "))
	}

	rawLevel := strings.TrimSpace(h.Get(HeaderLevel))
	if rawLevel == "" {
		return retrieval.Identity{}, fmt.Errorf("missing identity headers: %s", HeaderLevel)
	}
	level, err := strconv.Atoi(rawLevel)
	if err != nil || level < 0 {
		return retrieval.Identity{}, fmt.Errorf("invalid %s: %q", HeaderLevel, rawLevel)
	}
	id.Level = level

	return id, nil
}

// isAdmin reports whether the identity may touch the admin surface.
func isAdmin(id retrieval.Identity) bool {
	return id.Role == "manager" || id.Role == "admin"
}

var _ IdentityResolver = HeaderIdentityResolver{}
