package authz

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// StaticAuthorizer grants access from a fixed group -> resource -> verbs table.
type StaticAuthorizer struct {
	grants map[string]map[string]mapset.Set[string]
}

// NewStaticAuthorizer indexes a policy for lookup.
func NewStaticAuthorizer(p Policy) *StaticAuthorizer {
	a := &StaticAuthorizer{grants: make(map[string]map[string]mapset.Set[string])}
	for _, g := range p.Grants {
		byResource, ok := a.grants[g.Group]
		if !ok {
			byResource = make(map[string]mapset.Set[string])
			a.grants[g.Group] = byResource
		}
		verbs, ok := byResource[g.Resource]
		if !ok {
			verbs = mapset.NewThreadUnsafeSet[string]()
			byResource[g.Resource] = verbs
		}
		verbs.Append(g.Verbs...)
	}
	return a
}

// Authorize allows the request if any of the caller's groups holds the verb.
func (a *StaticAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	for _, group := range req.Groups {
		byResource, ok := a.grants[group]
		if !ok {
			continue
		}
		for _, resource := range []string{req.Resource, "*"} {
			verbs, ok := byResource[resource]
			if ok && (verbs.Contains(req.Verb) || verbs.Contains("*")) {
				return true, nil
			}
		}
	}
	return false, nil
}
