// internal/domain/access/gate.go
package access

import (
	"context"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Reason explains a redirect
type Reason string

const (
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonForbidden       Reason = "forbidden"
)

// Decision is the outcome of evaluating a request
type Decision struct {
	Allow  bool   `json:"allow"`
	Target string `json:"target,omitempty"`
	Reason Reason `json:"reason,omitempty"`
}

// Request is what the gate needs to know about an incoming request
type Request struct {
	UserID string // empty when not authenticated
	Path   string
}

// RoleLookup resolves the role of an authenticated identity
type RoleLookup interface {
	GetRole(ctx context.Context, userID string) (Role, error)
}

// Policy lists the protected route prefixes and the redirect targets
type Policy struct {
	UserPrefixes  []string
	AdminPrefixes []string
	SignInPath    string
	HomePath      string
}

// DefaultPolicy protects /user and /cart for signed-in users and /admin for admins
func DefaultPolicy() Policy {
	return Policy{
		UserPrefixes:  []string{"/user", "/cart"},
		AdminPrefixes: []string{"/admin"},
		SignInPath:    "/auth",
		HomePath:      "/",
	}
}

// IsAdminPath reports whether path is under an admin prefix
func (p Policy) IsAdminPath(path string) bool {
	return matchesAny(path, p.AdminPrefixes)
}

// IsUserPath reports whether path is under a user or cart prefix
func (p Policy) IsUserPath(path string) bool {
	return matchesAny(path, p.UserPrefixes)
}

// Evaluate is the pure decision table. role only matters on admin paths.
func Evaluate(p Policy, authenticated bool, role Role, path string) Decision {
	admin := p.IsAdminPath(path)

	if !authenticated && (admin || p.IsUserPath(path)) {
		return redirect(p.SignInPath, ReasonUnauthenticated)
	}
	if admin && role != RoleAdmin {
		return redirect(p.HomePath, ReasonForbidden)
	}
	return Decision{Allow: true}
}

// Gate evaluates requests against a policy, looking up roles when needed
type Gate struct {
	policy Policy
	roles  RoleLookup
	log    logrus.FieldLogger
}

// NewGate creates a new access gate
func NewGate(policy Policy, roles RoleLookup, log logrus.FieldLogger) *Gate {
	return &Gate{
		policy: policy,
		roles:  roles,
		log:    log.WithField("component", "access_gate"),
	}
}

// Policy returns the policy the gate enforces
func (g *Gate) Policy() Policy {
	return g.policy
}

// Decide evaluates req. The role is looked up only for admin paths of
// authenticated callers; a failed lookup leaves the role unknown.
func (g *Gate) Decide(ctx context.Context, req Request) Decision {
	authenticated := req.UserID != ""
	role := RoleUnknown

	if authenticated && g.policy.IsAdminPath(req.Path) {
		r, err := g.roles.GetRole(ctx, req.UserID)
		if err != nil {
			g.log.WithError(err).WithField("user_id", req.UserID).Warn("role lookup failed, treating role as unknown")
		} else {
			role = r
		}
	}

	d := Evaluate(g.policy, authenticated, role, req.Path)
	if !d.Allow {
		g.log.WithFields(logrus.Fields{
			"path":    req.Path,
			"user_id": req.UserID,
			"reason":  d.Reason,
		}).Info("request redirected")
	}
	return d
}

// HasPathPrefix reports whether path equals prefix or continues it with a new
// segment, so "/user" matches "/user/orders" but not "/users".
func HasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/'
}

func matchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if HasPathPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func redirect(target string, reason Reason) Decision {
	q := url.Values{}
	q.Set("error", string(reason))
	return Decision{
		Target: target + "?" + q.Encode(),
		Reason: reason,
	}
}
