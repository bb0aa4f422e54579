package override

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/authz"
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type targetBody struct {
	Type string `json:"type" validate:"required,max=100"`
	ID   string `json:"id" validate:"required,max=100"`
}

// createBody is the request body of POST /overrides. The requester is the
// caller's identity, never a body field.
type createBody struct {
	Title               string         `json:"title" validate:"required,max=200"`
	OverrideType        string         `json:"overrideType" validate:"required"`
	Description         string         `json:"description"`
	Reason              string         `json:"reason" validate:"max=200"`
	Justification       string         `json:"justification" validate:"required"`
	BusinessCase        string         `json:"businessCase"`
	Target              targetBody     `json:"target"`
	RiskLevel           string         `json:"riskLevel" validate:"required"`
	RiskAssessment      string         `json:"riskAssessment"`
	ImpactLevel         string         `json:"impactLevel" validate:"required"`
	ImpactAssessment    string         `json:"impactAssessment"`
	IsEmergency         bool           `json:"isEmergency"`
	PriorityLevel       int            `json:"priorityLevel" validate:"omitempty,min=1,max=10"`
	EffectiveFrom       *time.Time     `json:"effectiveFrom"`
	EffectiveUntil      *time.Time     `json:"effectiveUntil"`
	OriginalValue       map[string]any `json:"originalValue"`
	OverrideValue       map[string]any `json:"overrideValue"`
	RequiresMonitoring  bool           `json:"requiresMonitoring"`
	MonitoringFrequency string         `json:"monitoringFrequency"`
	Tags                []string       `json:"tags" validate:"max=20,dive,max=50"`
}

func (b createBody) toRequest(actor string) CreateRequest {
	return CreateRequest{
		Title:               b.Title,
		OverrideType:        ParseType(b.OverrideType),
		Description:         b.Description,
		Reason:              b.Reason,
		Justification:       b.Justification,
		BusinessCase:        b.BusinessCase,
		Target:              TargetRef{Type: b.Target.Type, ID: b.Target.ID},
		RequestedBy:         actor,
		RiskLevel:           ParseRiskLevel(b.RiskLevel),
		RiskAssessment:      b.RiskAssessment,
		ImpactLevel:         ParseImpactLevel(b.ImpactLevel),
		ImpactAssessment:    b.ImpactAssessment,
		IsEmergency:         b.IsEmergency,
		PriorityLevel:       b.PriorityLevel,
		EffectiveFrom:       b.EffectiveFrom,
		EffectiveUntil:      b.EffectiveUntil,
		OriginalValue:       b.OriginalValue,
		OverrideValue:       b.OverrideValue,
		RequiresMonitoring:  b.RequiresMonitoring,
		MonitoringFrequency: ParseFrequency(b.MonitoringFrequency),
		Tags:                b.Tags,
	}
}

// actionBody is the request body of POST /overrides/{id}/{action}.
type actionBody struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (b actionBody) text() string {
	if b.Reason != "" {
		return b.Reason
	}
	return b.Notes
}

// CreateResponse is returned by POST /overrides.
type CreateResponse struct {
	Override *Override         `json:"override"`
	Warnings []ConflictWarning `json:"warnings"`
}

func createHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", "")
			return
		}
		if err := requestValidator.Struct(body); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				fe := fieldErrs[0]
				writeError(w, http.StatusBadRequest,
					fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()), "VALIDATION_FAILED", fe.Field())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_FAILED", "")
			return
		}

		o, warnings, err := svc.Create(r.Context(), body.toRequest(extractActor(r)))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if warnings == nil {
			warnings = []ConflictWarning{}
		}
		writeJSON(w, http.StatusCreated, CreateResponse{Override: o, Warnings: warnings})
	}
}

func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func deleteHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.Delete(r.Context(), chi.URLParam(r, "id"), extractActor(r), r.URL.Query().Get("reason"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func actionHandler(svc *Service, action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body actionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", "")
			return
		}

		id, actor, text := chi.URLParam(r, "id"), extractActor(r), body.text()
		ctx := r.Context()
		var (
			o   *Override
			err error
		)
		switch action {
		case ActionApprove:
			o, err = svc.Approve(ctx, id, actor, text)
		case ActionReject:
			o, err = svc.Reject(ctx, id, actor, text)
		case ActionActivate:
			o, err = svc.Activate(ctx, id, actor, text)
		case ActionRevoke:
			o, err = svc.Revoke(ctx, id, actor, text)
		case ActionComplete:
			o, err = svc.Complete(ctx, id, actor, text)
		case ActionMonitor:
			o, err = svc.UpdateMonitoring(ctx, id, actor, text)
		default:
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action), "", "")
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

// listHandler serves GET /overrides. status defaults to pending; other
// statuses are served through the filter search.
func listHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := ParseStatus(r.URL.Query().Get("status"))
		var (
			items []*Override
			err   error
		)
		switch status {
		case "", StatusPending:
			items, err = q.Pending(r.Context(), r.URL.Query().Get("requestedBy"))
		case StatusActive:
			items, err = q.Active(r.Context(), nil)
		default:
			if !status.Valid() {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status), "VALIDATION_FAILED", "status")
				return
			}
			var list *OverrideList
			list, err = q.Search(r.Context(), fmt.Sprintf("status = %q", status), pageSize(r), r.URL.Query().Get("pageToken"))
			if err == nil {
				writeJSON(w, http.StatusOK, list)
				return
			}
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeList(w, items)
	}
}

func activeHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var target *TargetRef
		if tt, tid := r.URL.Query().Get("targetType"), r.URL.Query().Get("targetId"); tt != "" || tid != "" {
			target = &TargetRef{Type: tt, ID: tid}
		}
		items, err := q.Active(r.Context(), target)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeList(w, items)
	}
}

func expiringHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "days must be a positive integer", "VALIDATION_FAILED", "days")
				return
			}
			days = n
		}
		items, err := q.Expiring(r.Context(), days)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeList(w, items)
	}
}

func monitoringOverdueHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := q.MonitoringOverdue(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeList(w, items)
	}
}

func statisticsHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := q.Statistics(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func searchHandler(q *QueryFacade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := q.Search(r.Context(), r.URL.Query().Get("filter"), pageSize(r), r.URL.Query().Get("pageToken"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func pageSize(r *http.Request) int {
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			return v
		}
	}
	return 20
}

func extractActor(r *http.Request) string { return authz.ActorFromContext(r.Context()) }

func writeList(w http.ResponseWriter, items []*Override) {
	if items == nil {
		items = []*Override{}
	}
	writeJSON(w, http.StatusOK, OverrideList{Overrides: items, TotalSize: len(items)})
}

// writeServiceError maps a typed service error to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		ve *ValidationError
		te *TransitionError
		pe *PermissionError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "OVERRIDE_NOT_FOUND", "")
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_FAILED", ve.Field)
	case errors.As(err, &pe):
		writeError(w, http.StatusForbidden, err.Error(), "PERMISSION_DENIED", "")
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, err.Error(), te.Code, "")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "PERSISTENCE_FAILURE", "")
	}
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Field: field})
}
