// Package authz provides request identity and coarse route-level
// authorization for the override API. Business rules such as separation
// of duties are enforced by the override service, not here.
package authz

import "context"

// Resource names for permission checks.
const (
	ResourceOverrides = "overrides"
	ResourceAudit     = "audit"
	ResourceJobs      = "jobs"
)

// Verb names for permission checks.
const (
	VerbGet      = "get"
	VerbList     = "list"
	VerbCreate   = "create"
	VerbDelete   = "delete"
	VerbApprove  = "approve"
	VerbReject   = "reject"
	VerbActivate = "activate"
	VerbRevoke   = "revoke"
	VerbComplete = "complete"
	VerbMonitor  = "monitor"
	VerbRun      = "run"
)

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	User     string
	Groups   []string
	Resource string
	Verb     string
}

// Authorizer checks whether a user is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}
