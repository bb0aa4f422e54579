package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/audit"
)

// AuditTargetType is the audit target_type of every override event.
const AuditTargetType = "admin_override"

// SystemActor is recorded for transitions with no human actor.
const SystemActor = "system"

// Audit action types written by the service.
const (
	AuditCreate   = "CREATE"
	AuditApprove  = "APPROVE"
	AuditReject   = "REJECT"
	AuditActivate = "ACTIVATE"
	AuditRevoke   = "REVOKE"
	AuditComplete = "COMPLETE"
	AuditExpire   = "EXPIRE"
	AuditUpdate   = "UPDATE"
	AuditDelete   = "DELETE"
)

var auditActions = map[Action]string{
	ActionCreate:   AuditCreate,
	ActionApprove:  AuditApprove,
	ActionReject:   AuditReject,
	ActionActivate: AuditActivate,
	ActionRevoke:   AuditRevoke,
	ActionComplete: AuditComplete,
	ActionExpire:   AuditExpire,
	ActionMonitor:  AuditUpdate,
	ActionDelete:   AuditDelete,
}

// AuditSink appends one immutable audit record. tx is the transaction of
// the state change; a returned error rolls that change back.
type AuditSink interface {
	Record(ctx context.Context, tx *gorm.DB, e audit.Entry) error
}

// Service is the only component that mutates overrides. Each operation
// runs the state-machine check, then the validator rules, then writes the
// change and its audit record in one transaction.
type Service struct {
	db        *gorm.DB
	store     *Store
	sink      AuditSink
	validator *Validator
	machine   *Machine
	now       func() time.Time
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	onCommit  []func(action Action, id string)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithValidator sets the rule set. Sharing one Validator lets a config
// reload reach a running service.
func WithValidator(v *Validator) Option {
	return func(s *Service) { s.validator = v }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMetrics sets the metric collectors.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCommitHook registers fn to run after every committed write, outside
// the transaction.
func WithCommitHook(fn func(action Action, id string)) Option {
	return func(s *Service) { s.onCommit = append(s.onCommit, fn) }
}

// NewService creates a Service. sink must not be nil.
func NewService(db *gorm.DB, sink AuditSink, opts ...Option) *Service {
	s := &Service{
		db:      db,
		store:   NewStore(db),
		sink:    sink,
		machine: NewMachine(),
		now:     time.Now,
		logger:  slog.Default(),
		tracer:  otel.Tracer("override"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = NewValidator(nil)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	return s
}

func (s *Service) committed(action Action, id string) {
	for _, fn := range s.onCommit {
		fn(action, id)
	}
}

// Validator returns the service's rule set.
func (s *Service) Validator() *Validator { return s.validator }

func (s *Service) clock() time.Time { return s.now().UTC() }

func (s *Service) startSpan(ctx context.Context, op, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "override."+op, trace.WithAttributes(
		attribute.String("override.id", id),
	))
}

func (s *Service) finish(span trace.Span, action Action, err error) {
	s.metrics.observe(action, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Create validates req and stores a new PENDING override with one CREATE
// audit record. Conflicts with overrides already active on the target are
// returned as warnings and never block creation.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Override, _ []ConflictWarning, err error) {
	ctx, span := s.startSpan(ctx, "create", "")
	defer func() { s.finish(span, ActionCreate, err) }()

	req, err = s.validator.ValidateCreate(req)
	if err != nil {
		return nil, nil, err
	}

	active, err := s.store.ListActiveForTarget(ctx, req.Target)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "check conflicts", Err: err}
	}
	warnings := s.validator.CheckConflicts(req.Target, req.OverrideType, active)

	now := s.clock()
	rec := &Record{
		ID:                  uuid.New().String(),
		OverrideType:        req.OverrideType,
		Status:              StatusPending,
		TargetType:          req.Target.Type,
		TargetID:            req.Target.ID,
		Title:               req.Title,
		Description:         req.Description,
		Reason:              req.Reason,
		Justification:       req.Justification,
		BusinessCase:        req.BusinessCase,
		RiskLevel:           req.RiskLevel,
		RiskAssessment:      req.RiskAssessment,
		ImpactLevel:         req.ImpactLevel,
		ImpactAssessment:    req.ImpactAssessment,
		IsEmergency:         req.IsEmergency,
		PriorityLevel:       req.PriorityLevel,
		OriginalValue:       req.OriginalValue,
		OverrideValue:       req.OverrideValue,
		RequestedBy:         req.RequestedBy,
		RequestedAt:         now,
		EffectiveFrom:       utcPtr(req.EffectiveFrom),
		EffectiveUntil:      utcPtr(req.EffectiveUntil),
		RequiresMonitoring:  req.RequiresMonitoring,
		MonitoringFrequency: req.MonitoringFrequency,
		Tags:                req.Tags,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	rec.appendLog(now, req.RequestedBy, "Override requested: "+req.Title)
	span.SetAttributes(attribute.String("override.id", rec.ID))

	metadata := targetMetadata(rec)
	metadata["justification"] = rec.Justification
	if len(warnings) > 0 {
		conflicts := make([]map[string]any, len(warnings))
		for i, w := range warnings {
			conflicts[i] = map[string]any{
				"override_id":   w.OverrideID,
				"override_type": string(w.OverrideType),
				"same_type":     w.SameType,
			}
		}
		metadata["conflicts"] = conflicts
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.Create(ctx, tx, rec); err != nil {
			return err
		}
		return s.sink.Record(ctx, tx, audit.Entry{
			Timestamp:     now,
			Actor:         rec.RequestedBy,
			ActionType:    AuditCreate,
			TargetType:    AuditTargetType,
			TargetID:      rec.ID,
			After:         auditSnapshot(rec),
			Metadata:      metadata,
			CorrelationID: uuid.New().String(),
		})
	})
	if err != nil {
		return nil, nil, classify("create override", err)
	}

	for _, w := range warnings {
		s.logger.Warn("override conflicts with active override",
			"overrideID", rec.ID, "conflictID", w.OverrideID, "sameType", w.SameType)
	}
	s.committed(ActionCreate, rec.ID)
	s.logger.Info("override created",
		"overrideID", rec.ID, "type", rec.OverrideType, "risk", rec.RiskLevel, "requestedBy", rec.RequestedBy)
	return rec.ToOverride(), warnings, nil
}

// Approve moves a PENDING override to APPROVED. The approver must not be
// the requester, and HIGH or CRITICAL risk approvals require notes.
func (s *Service) Approve(ctx context.Context, id, actor, notes string) (*Override, error) {
	return s.transition(ctx, id, actor, ActionApprove, notes, func(rec *Record, actor string, now time.Time) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if actor == rec.RequestedBy {
			return &PermissionError{Actor: actor, Action: ActionApprove, Reason: "cannot approve own request"}
		}
		if err := s.validator.ValidateApproval(rec.RiskLevel, notes); err != nil {
			return err
		}
		rec.ApprovedBy = actor
		setOnce(&rec.ApprovedAt, now)
		rec.ApprovalNotes = strings.TrimSpace(notes)
		rec.appendLog(now, actor, logMessage("Approved", notes))
		return nil
	})
}

// Reject moves a PENDING override to REJECTED.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*Override, error) {
	return s.transition(ctx, id, actor, ActionReject, reason, func(rec *Record, actor string, now time.Time) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if err := s.validator.ValidateRejection(reason); err != nil {
			return err
		}
		rec.RejectionReason = strings.TrimSpace(reason)
		rec.ReviewedBy = actor
		rec.appendLog(now, actor, logMessage("Rejected", reason))
		return nil
	})
}

// Activate moves an APPROVED override to ACTIVE. now must fall inside the
// effective window when one is set; an unset effective_from becomes now.
func (s *Service) Activate(ctx context.Context, id, actor, notes string) (*Override, error) {
	return s.transition(ctx, id, actor, ActionActivate, notes, func(rec *Record, actor string, now time.Time) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if err := s.validator.ValidateActivationWindow(rec.EffectiveFrom, rec.EffectiveUntil, now); err != nil {
			return err
		}
		setOnce(&rec.EffectiveFrom, now)
		setOnce(&rec.AppliedAt, now)
		rec.appendLog(now, actor, logMessage("Activated", notes))
		return nil
	})
}

// Revoke moves an APPROVED or ACTIVE override to REVOKED.
func (s *Service) Revoke(ctx context.Context, id, actor, reason string) (*Override, error) {
	return s.transition(ctx, id, actor, ActionRevoke, reason, func(rec *Record, actor string, now time.Time) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if err := s.validator.ValidateRevocation(reason); err != nil {
			return err
		}
		rec.RevocationReason = strings.TrimSpace(reason)
		setOnce(&rec.RevokedAt, now)
		rec.appendLog(now, actor, logMessage("Revoked", reason))
		return nil
	})
}

// Complete moves an ACTIVE override to COMPLETED. An empty actor is
// recorded as SystemActor.
func (s *Service) Complete(ctx context.Context, id, actor, notes string) (*Override, error) {
	if strings.TrimSpace(actor) == "" {
		actor = SystemActor
	}
	return s.transition(ctx, id, actor, ActionComplete, notes, func(rec *Record, actor string, now time.Time) error {
		rec.CompletionNotes = strings.TrimSpace(notes)
		rec.appendLog(now, actor, logMessage("Completed", notes))
		return nil
	})
}

// UpdateMonitoring records a monitoring check. It is allowed in every
// status and never changes it.
func (s *Service) UpdateMonitoring(ctx context.Context, id, actor, notes string) (*Override, error) {
	return s.transition(ctx, id, actor, ActionMonitor, notes, func(rec *Record, actor string, now time.Time) error {
		if err := requireActor(actor); err != nil {
			return err
		}
		if strings.TrimSpace(notes) == "" {
			return invalid("notes", "monitoring notes are required")
		}
		t := now
		rec.LastMonitoredAt = &t
		rec.ReviewedBy = actor
		rec.ReviewNotes = strings.TrimSpace(notes)
		rec.appendLog(now, actor, logMessage("Monitoring update", notes))
		return nil
	})
}

// expire moves an ACTIVE override past its effective window to EXPIRED.
func (s *Service) expire(ctx context.Context, id string) (*Override, error) {
	return s.transition(ctx, id, SystemActor, ActionExpire, "", func(rec *Record, actor string, now time.Time) error {
		if rec.EffectiveUntil == nil || !now.After(*rec.EffectiveUntil) {
			return &TransitionError{
				Code:    CodeInvalidTransition,
				From:    rec.Status,
				Action:  ActionExpire,
				Message: "override is still inside its effective window",
			}
		}
		rec.appendLog(now, SystemActor, "Expired: effective window ended")
		return nil
	})
}

// Get returns an override by id. An ACTIVE override found past its
// effective window is expired first.
func (s *Service) Get(ctx context.Context, id string) (*Override, error) {
	rec, err := s.store.Get(ctx, nil, id)
	if err != nil {
		return nil, &PersistenceError{Op: "get override", Err: err}
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status != StatusActive || !rec.ToOverride().IsExpired(s.clock()) {
		return rec.ToOverride(), nil
	}

	o, err := s.expire(ctx, id)
	var te *TransitionError
	if errors.As(err, &te) {
		// Someone else moved it first; return what is stored now.
		rec, err = s.store.Get(ctx, nil, id)
		if err != nil {
			return nil, &PersistenceError{Op: "get override", Err: err}
		}
		if rec == nil {
			return nil, ErrNotFound
		}
		return rec.ToOverride(), nil
	}
	return o, err
}

// ExpireDue expires up to limit ACTIVE overrides whose effective window has
// ended, each in its own transaction. Overrides changed concurrently are
// skipped. It returns the number expired.
func (s *Service) ExpireDue(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.ListExpiredActive(ctx, s.clock(), limit)
	if err != nil {
		return 0, &PersistenceError{Op: "list expired overrides", Err: err}
	}

	var (
		expired int
		errs    []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		_, err := s.expire(ctx, id)
		var te *TransitionError
		switch {
		case err == nil:
			expired++
		case errors.As(err, &te), errors.Is(err, ErrNotFound):
			continue
		default:
			errs = append(errs, fmt.Errorf("expire %s: %w", id, err))
		}
	}
	return expired, errors.Join(errs...)
}

// Delete removes an override that is not ACTIVE or COMPLETED, writing one
// DELETE audit record in the same transaction.
func (s *Service) Delete(ctx context.Context, id, actor, reason string) (err error) {
	ctx, span := s.startSpan(ctx, "delete", id)
	defer func() { s.finish(span, ActionDelete, err) }()

	actor = strings.TrimSpace(actor)
	now := s.clock()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		if _, err := s.machine.Next(rec.Status, ActionDelete); err != nil {
			return err
		}
		if err := requireActor(actor); err != nil {
			return err
		}
		if err := s.store.DeleteGuarded(ctx, tx, id, rec.Status, rec.Version); err != nil {
			return staleOr(err, rec.Status, ActionDelete)
		}
		metadata := targetMetadata(rec)
		metadata["reason"] = strings.TrimSpace(reason)
		return s.sink.Record(ctx, tx, audit.Entry{
			Timestamp:     now,
			Actor:         actor,
			ActionType:    AuditDelete,
			TargetType:    AuditTargetType,
			TargetID:      id,
			Before:        auditSnapshot(rec),
			Metadata:      metadata,
			CorrelationID: uuid.New().String(),
		})
	})
	if err != nil {
		return classify("delete override", err)
	}
	s.committed(ActionDelete, id)
	s.logger.Info("override deleted", "overrideID", id, "actor", actor)
	return nil
}

// mutator applies action-specific checks and field changes to rec. It
// runs after the state-machine check and before the write.
// mutator receives the trimmed actor.
type mutator func(rec *Record, actor string, now time.Time) error

func (s *Service) transition(ctx context.Context, id, actor string, action Action, text string, mutate mutator) (_ *Override, err error) {
	ctx, span := s.startSpan(ctx, string(action), id)
	defer func() { s.finish(span, action, err) }()

	actor = strings.TrimSpace(actor)
	now := s.clock()
	var (
		rec      *Record
		from, to Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = s.store.Get(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}

		from = rec.Status
		to, err = s.machine.Next(from, action)
		if err != nil {
			return err
		}

		before := auditSnapshot(rec)
		version := rec.Version
		if err := mutate(rec, actor, now); err != nil {
			return err
		}

		rec.Status = to
		rec.Version = version + 1
		rec.UpdatedAt = now
		if to != from && IsTerminal(to) {
			setOnce(&rec.StatusChangedAt, now)
			if rec.StatusChangedBy == "" {
				rec.StatusChangedBy = actor
			}
		}

		if err := s.store.UpdateGuarded(ctx, tx, rec, from, version); err != nil {
			return staleOr(err, from, action)
		}

		metadata := targetMetadata(rec)
		metadata["from_status"] = string(from)
		metadata["to_status"] = string(to)
		if t := strings.TrimSpace(text); t != "" {
			metadata["text"] = t
		}
		return s.sink.Record(ctx, tx, audit.Entry{
			Timestamp:     now,
			Actor:         actor,
			ActionType:    auditActions[action],
			TargetType:    AuditTargetType,
			TargetID:      rec.ID,
			Before:        before,
			After:         auditSnapshot(rec),
			Metadata:      metadata,
			CorrelationID: uuid.New().String(),
		})
	})
	if err != nil {
		return nil, classify(string(action)+" override", err)
	}

	s.committed(action, id)
	s.logger.Info("override transition committed",
		"overrideID", id, "action", action, "from", from, "to", to, "actor", actor)
	return rec.ToOverride(), nil
}

func staleOr(err error, from Status, action Action) error {
	if errors.Is(err, errStale) {
		return &TransitionError{
			Code:    CodeStaleState,
			From:    from,
			Action:  action,
			Message: fmt.Sprintf("override was modified concurrently; cannot %s from %s", action, from),
		}
	}
	return err
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return invalid("actor", "is required")
	}
	return nil
}

func targetMetadata(rec *Record) map[string]any {
	return map[string]any{
		"target_type":   rec.TargetType,
		"target_id":     rec.TargetID,
		"override_type": string(rec.OverrideType),
	}
}

func logMessage(prefix, text string) string {
	if t := strings.TrimSpace(text); t != "" {
		return prefix + ": " + t
	}
	return prefix
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
