package router

import "strings"

// Policy decides how a request to an endpoint travels on the wire.
type Policy uint8

const (
	// PolicyEncrypted seals the request with the session secret.
	// Endpoints with no matching rule default to encrypted.
	PolicyEncrypted Policy = iota

	// PolicyPlain sends the request unencrypted. Used for the
	// endpoints that must work before a session exists, like login
	// and the handshake itself.
	PolicyPlain
)

// String returns a human-readable policy name.
func (p Policy) String() string {
	switch p {
	case PolicyEncrypted:
		return "ENCRYPTED"
	case PolicyPlain:
		return "PLAIN"
	default:
		return "UNKNOWN"
	}
}

// Rule maps an endpoint pattern to a policy. A pattern is either an
// exact endpoint or a prefix ending in "*".
type Rule struct {
	Pattern string
	Policy  Policy
}

// PolicyTable resolves endpoints to policies. The first matching rule
// wins; endpoints matching no rule are encrypted.
type PolicyTable struct {
	rules []Rule
}

// NewPolicyTable builds a policy table from rules in priority order.
func NewPolicyTable(rules ...Rule) *PolicyTable {
	return &PolicyTable{rules: rules}
}

// Resolve returns the policy for an endpoint.
func (t *PolicyTable) Resolve(endpoint string) Policy {
	for _, rule := range t.rules {
		if matchPattern(rule.Pattern, endpoint) {
			return rule.Policy
		}
	}
	return PolicyEncrypted
}

// matchPattern reports whether an endpoint matches a rule pattern.
func matchPattern(pattern, endpoint string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(endpoint, prefix)
	}
	return pattern == endpoint
}
