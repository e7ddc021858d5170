package capability

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	execsafety "github.com/haasonsaas/sentinel/internal/exec"
	"github.com/haasonsaas/sentinel/internal/net/ssrf"
)

// Decision is the outcome of a single capability check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allowed constructs an affirmative Decision.
func Allowed() Decision { return Decision{Allowed: true} }

// Denied constructs a negative Decision carrying a reason code, one of
// "not_in_grant", "invalid_argument", "internal_error" or a
// caller-supplied code.
func Denied(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// EventFunc is called exactly once per check with the outcome, before
// the result is returned to the caller — it is how the checker
// satisfies spec.md §4.1's "every call emits exactly one audit event
// regardless of outcome" without importing the audit package directly
// (avoids a capability → audit → capability import cycle risk and
// keeps the checker testable without a live sink).
type EventFunc func(capabilityKind, resource string, decision Decision)

// Checker evaluates a Grant against requested effects. It never
// mutates the grant and is safe for concurrent use.
type Checker struct {
	grant      *Grant
	canonicalize func(string) (string, error)
	onEvent    EventFunc
}

// NewChecker constructs a Checker over grant. canonicalize resolves a
// path to its absolute, symlink-resolved form (the platform backend's
// Canonicalize operation); onEvent, if non-nil, is invoked once per
// check.
func NewChecker(grant *Grant, canonicalize func(string) (string, error), onEvent EventFunc) *Checker {
	return &Checker{grant: grant, canonicalize: canonicalize, onEvent: onEvent}
}

// CheckRead decides whether path may be read.
func (c *Checker) CheckRead(path string) Decision {
	return c.emit("read", path, c.checkPathPrefix(path, c.grant.ReadPaths))
}

// CheckWrite decides whether path may be written.
func (c *Checker) CheckWrite(path string) Decision {
	return c.emit("write", path, c.checkPathPrefix(path, c.grant.WritePaths))
}

// checkPathPrefix implements spec.md §4.1's algorithm: canonicalize,
// then require either exact equality with a grant prefix or that the
// grant prefix extended with a path separator is a strict prefix of
// the candidate. Plain string-prefix matching is explicitly wrong:
// "/data/foo" must not match a grant of "/data/f".
func (c *Checker) checkPathPrefix(path string, prefixes []string) Decision {
	canon, err := canonicalizeOrLexical(path, c.canonicalize)
	if err != nil {
		return Denied("internal_error")
	}
	for _, prefix := range prefixes {
		if matchesPrefix(prefix, canon) {
			return Allowed()
		}
	}
	return Denied("not_in_grant")
}

// matchesPrefix reports whether candidate is prefix itself or lies
// strictly beneath it, with an explicit separator boundary.
func matchesPrefix(prefix, candidate string) bool {
	prefix = filepath.Clean(prefix)
	candidate = filepath.Clean(candidate)
	if prefix == candidate {
		return true
	}
	sep := string(filepath.Separator)
	withSep := strings.TrimSuffix(prefix, sep) + sep
	return strings.HasPrefix(candidate, withSep)
}

// CheckCommand decides whether a command basename may be spawned with
// the given arguments. Names containing a path separator or shell
// metacharacters are always denied: commands are matched by exact
// basename, never resolved through PATH search or shell expansion.
// Every argument beginning with "-" is denied: the grant models
// commands as a flat basename set and has no per-command flag
// allowlist, so no flag argument is ever allowed.
func (c *Checker) CheckCommand(name string, args []string) Decision {
	resource := name
	if len(args) > 0 {
		resource = name + " " + strings.Join(args, " ")
	}
	if name == "" || strings.ContainsRune(name, '/') || execsafety.IsLikelyPath(name) || execsafety.ShellMetachars.MatchString(name) {
		return c.emit("command", resource, Denied("invalid_argument"))
	}
	for _, a := range args {
		if strings.HasPrefix(a, "-") || !execsafety.IsSafeArgument(a) {
			return c.emit("command", resource, Denied("invalid_argument"))
		}
	}
	if !c.grant.Commands[name] {
		return c.emit("command", resource, Denied("not_in_grant"))
	}
	return c.emit("command", resource, Allowed())
}

// CheckNet decides whether a host:port endpoint may be connected to.
// Matching is exact; wildcards are honored only when the grant
// explicitly lists one as an endpoint entry ("*:443"). An allowlisted
// hostname is additionally rejected if it is itself a loopback,
// link-local, or other internal-use literal (ssrf.IsBlockedHostname,
// ssrf.IsPrivateIPAddress) — a defense against an operator's grant
// entry naming an address that was never meant to be reachable. This
// is a literal check only, no DNS lookup: CheckNet stays a pure,
// synchronous decision, so a connector's actual dial still goes
// through whatever DNS-rebinding protection its transport applies.
func (c *Checker) CheckNet(host string, port int) Decision {
	resource := host + ":" + strconv.Itoa(port)
	key := strings.ToLower(resource)
	if !c.grant.NetEndpoints[key] && !c.grant.NetEndpoints["*:"+strconv.Itoa(port)] {
		return c.emit("net", resource, Denied("not_in_grant"))
	}
	if ssrf.IsBlockedHostname(host) || ssrf.IsPrivateIPAddress(host) {
		return c.emit("net", resource, Denied("ssrf_blocked"))
	}
	return c.emit("net", resource, Allowed())
}

// CheckUser decides whether a messaging user identifier may interact
// with the agent, per the allowed_users grant (spec.md §3, §9).
func (c *Checker) CheckUser(userID string) Decision {
	if c.grant.AllowAllUsers {
		return c.emit("allowed_users", userID, Decision{Allowed: true, Reason: "empty_grant_allows_all"})
	}
	if c.grant.AllowedUsers[userID] {
		return c.emit("allowed_users", userID, Allowed())
	}
	return c.emit("allowed_users", userID, Denied("not_in_grant"))
}

// CommandTimeout returns the configured command timeout. Zero means
// disabled (no deadline) — see DESIGN.md's Open Question decision.
func (c *Checker) CommandTimeout() time.Duration {
	return c.grant.CommandTimeout
}

func (c *Checker) emit(kind, resource string, d Decision) Decision {
	if c.onEvent != nil {
		c.onEvent(kind, resource, d)
	}
	return d
}
