package authz

import "context"

// AllowAll authorizes every request. It backs --authz-mode none, where the
// proxy in front of the server is the only gate.
type AllowAll struct{}

// Authorize returns true.
func (AllowAll) Authorize(context.Context, AuthzRequest) (bool, error) { return true, nil }
