package audit

import (
	"github.com/go-chi/chi/v5"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
)

// Router creates a chi.Router for the audit API.
// When authorizer is non-nil, endpoints require audit:list and audit:get permissions.
func Router(store *Store, authorizer authz.Authorizer) chi.Router {
	r := chi.NewRouter()
	r.Get("/events", authz.Wrap(authorizer, authz.ResourceAudit, authz.VerbList, ListEventsHandler(store)))
	r.Get("/events/{eventId}", authz.Wrap(authorizer, authz.ResourceAudit, authz.VerbGet, GetEventHandler(store)))
	return r
}
