package override

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
)

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	reports []func(http.Handler) http.Handler
}

// WithReportMiddleware wraps the read-only list and report routes in mw.
// It runs after the permission check.
func WithReportMiddleware(mw ...func(http.Handler) http.Handler) RouterOption {
	return func(c *routerConfig) { c.reports = append(c.reports, mw...) }
}

func (c *routerConfig) report(h http.HandlerFunc) http.HandlerFunc {
	var wrapped http.Handler = h
	for i := len(c.reports) - 1; i >= 0; i-- {
		wrapped = c.reports[i](wrapped)
	}
	return wrapped.ServeHTTP
}

// NewRouter creates a chi router with the override API routes. When
// authorizer is non-nil each route requires its overrides verb.
func NewRouter(svc *Service, authorizer authz.Authorizer, opts ...RouterOption) chi.Router {
	cfg := &routerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	r := chi.NewRouter()
	q := svc.Queries()

	list := func(path string, h http.HandlerFunc) {
		r.Get(path, authz.Wrap(authorizer, authz.ResourceOverrides, authz.VerbList, cfg.report(h)))
	}
	list("/", listHandler(q))
	list("/active", activeHandler(q))
	list("/expiring", expiringHandler(q))
	list("/monitoring-overdue", monitoringOverdueHandler(q))
	list("/statistics", statisticsHandler(q))
	list("/search", searchHandler(q))
	r.Post("/", authz.Wrap(authorizer, authz.ResourceOverrides, authz.VerbCreate, createHandler(svc)))

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", authz.Wrap(authorizer, authz.ResourceOverrides, authz.VerbGet, getHandler(svc)))
		r.Delete("/", authz.Wrap(authorizer, authz.ResourceOverrides, authz.VerbDelete, deleteHandler(svc)))
		for action, verb := range map[Action]string{
			ActionApprove:  authz.VerbApprove,
			ActionReject:   authz.VerbReject,
			ActionActivate: authz.VerbActivate,
			ActionRevoke:   authz.VerbRevoke,
			ActionComplete: authz.VerbComplete,
			ActionMonitor:  authz.VerbMonitor,
		} {
			r.Post("/"+string(action), authz.Wrap(authorizer, authz.ResourceOverrides, verb, actionHandler(svc, action)))
		}
	})

	return r
}
