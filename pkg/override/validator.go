package override

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
)

// CreateRequest carries everything needed to open a new override.
type CreateRequest struct {
	Title               string              `json:"title" yaml:"title"`
	OverrideType        OverrideType        `json:"overrideType" yaml:"overrideType"`
	Description         string              `json:"description" yaml:"description"`
	Reason              string              `json:"reason" yaml:"reason"`
	Justification       string              `json:"justification" yaml:"justification"`
	BusinessCase        string              `json:"businessCase" yaml:"businessCase"`
	Target              TargetRef           `json:"target" yaml:"target"`
	RequestedBy         string              `json:"requestedBy" yaml:"requestedBy"`
	RiskLevel           RiskLevel           `json:"riskLevel" yaml:"riskLevel"`
	RiskAssessment      string              `json:"riskAssessment" yaml:"riskAssessment"`
	ImpactLevel         ImpactLevel         `json:"impactLevel" yaml:"impactLevel"`
	ImpactAssessment    string              `json:"impactAssessment" yaml:"impactAssessment"`
	IsEmergency         bool                `json:"isEmergency" yaml:"isEmergency"`
	PriorityLevel       int                 `json:"priorityLevel" yaml:"priorityLevel"` // 0 means unset
	EffectiveFrom       *time.Time          `json:"effectiveFrom,omitempty" yaml:"effectiveFrom,omitempty"`
	EffectiveUntil      *time.Time          `json:"effectiveUntil,omitempty" yaml:"effectiveUntil,omitempty"`
	OriginalValue       map[string]any      `json:"originalValue,omitempty" yaml:"originalValue,omitempty"`
	OverrideValue       map[string]any      `json:"overrideValue,omitempty" yaml:"overrideValue,omitempty"`
	RequiresMonitoring  bool                `json:"requiresMonitoring" yaml:"requiresMonitoring"`
	MonitoringFrequency MonitoringFrequency `json:"monitoringFrequency,omitempty" yaml:"monitoringFrequency,omitempty"`
	Tags                []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// DefaultPriority is used when a request leaves priority_level unset.
const DefaultPriority = 5

// ConflictWarning is an advisory note that the target already carries an
// active override. It never blocks creation.
type ConflictWarning struct {
	OverrideID   string       `json:"overrideId"`
	OverrideType OverrideType `json:"overrideType"`
	SameType     bool         `json:"sameType"`
	Message      string       `json:"message"`
}

// Validator holds the pure rule functions that gate creation and
// transitions. Rules can be swapped at runtime with SetConfig.
type Validator struct {
	cfg atomic.Pointer[Config]
}

// NewValidator creates a validator. A nil cfg uses DefaultConfig.
func NewValidator(cfg *Config) *Validator {
	v := &Validator{}
	v.SetConfig(cfg)
	return v
}

// SetConfig replaces the active rules.
func (v *Validator) SetConfig(cfg *Config) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	v.cfg.Store(cfg)
}

// Config returns the active rules.
func (v *Validator) Config() *Config { return v.cfg.Load() }

// JustificationMinLength returns the risk-scaled minimum justification length.
func (v *Validator) JustificationMinLength(risk RiskLevel) int {
	if n, ok := v.Config().JustificationMinLength[risk]; ok {
		return n
	}
	return DefaultConfig().JustificationMinLength[risk]
}

func textLen(s string) int { return utf8.RuneCountInString(strings.TrimSpace(s)) }

// ValidateJustificationQuality checks length against the risk minimum and,
// for override types with a keyword rule, that enough type-specific
// keywords appear. Matching is case-insensitive substring matching.
func (v *Validator) ValidateJustificationQuality(text string, t OverrideType, risk RiskLevel) error {
	if strings.TrimSpace(text) == "" {
		return invalid("justification", "is required")
	}
	if minLen := v.JustificationMinLength(risk); textLen(text) < minLen {
		return invalid("justification", "must be at least %d characters for %s risk", minLen, risk)
	}

	cfg := v.Config()
	keywords, ok := cfg.KeywordRules[t]
	if !cfg.KeywordCheck || !ok || len(keywords) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	matched := mapset.NewThreadUnsafeSet[string]()
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw != "" && strings.Contains(lower, kw) {
			matched.Add(kw)
		}
	}
	if matched.Cardinality() < cfg.MinKeywordMatches {
		return invalid("justification",
			"%s overrides must mention at least %d of: %s",
			t, cfg.MinKeywordMatches, strings.Join(keywords, ", "))
	}
	return nil
}

// ValidateCreate checks a create request and returns it normalized:
// emergency priority is clamped to 2, an unset priority becomes
// DefaultPriority, and tags are de-duplicated.
func (v *Validator) ValidateCreate(req CreateRequest) (CreateRequest, error) {
	cfg := v.Config()

	req.Title = strings.TrimSpace(req.Title)
	req.RequestedBy = strings.TrimSpace(req.RequestedBy)
	if req.Title == "" {
		return req, invalid("title", "is required")
	}
	if !req.OverrideType.Valid() {
		return req, invalid("override_type", "unknown override type %q", req.OverrideType)
	}
	if strings.TrimSpace(req.Target.Type) == "" || strings.TrimSpace(req.Target.ID) == "" {
		return req, invalid("target", "type and id are required")
	}
	if req.RequestedBy == "" {
		return req, invalid("requested_by", "is required")
	}
	if !req.RiskLevel.Valid() {
		return req, invalid("risk_level", "unknown risk level %q", req.RiskLevel)
	}
	if !req.ImpactLevel.Valid() {
		return req, invalid("impact_level", "unknown impact level %q", req.ImpactLevel)
	}
	if req.PriorityLevel == 0 {
		req.PriorityLevel = DefaultPriority
	}
	if req.PriorityLevel < 1 || req.PriorityLevel > 10 {
		return req, invalid("priority_level", "must be between 1 and 10, got %d", req.PriorityLevel)
	}
	if req.IsEmergency {
		if !req.RiskLevel.IsHigh() {
			return req, invalid("risk_level", "emergency overrides must be HIGH or CRITICAL risk")
		}
		req.PriorityLevel = min(req.PriorityLevel, 2)
	}

	if err := v.ValidateJustificationQuality(req.Justification, req.OverrideType, req.RiskLevel); err != nil {
		return req, err
	}
	if req.IsEmergency && textLen(req.Justification) < cfg.EmergencyJustificationMinLength {
		return req, invalid("justification", "must be at least %d characters for emergency overrides", cfg.EmergencyJustificationMinLength)
	}
	if req.RiskLevel.IsHigh() && strings.TrimSpace(req.BusinessCase) == "" {
		return req, invalid("business_case", "is required for %s risk", req.RiskLevel)
	}

	if req.EffectiveFrom != nil && req.EffectiveUntil != nil && !req.EffectiveFrom.Before(*req.EffectiveUntil) {
		return req, invalid("effective_until", "must be after effective_from")
	}

	if req.MonitoringFrequency == "" && req.RequiresMonitoring {
		req.MonitoringFrequency = MonitorDaily
	}
	if req.MonitoringFrequency != "" && !req.MonitoringFrequency.Valid() {
		return req, invalid("monitoring_frequency", "unknown frequency %q", req.MonitoringFrequency)
	}

	req.Tags = normalizeTags(req.Tags)
	return req, nil
}

// ValidateApproval requires notes on HIGH and CRITICAL risk approvals.
func (v *Validator) ValidateApproval(risk RiskLevel, notes string) error {
	if risk.IsHigh() && strings.TrimSpace(notes) == "" {
		return invalid("notes", "approval notes are required for %s risk", risk)
	}
	return nil
}

// ValidateRejection requires a reason of a minimum length.
func (v *Validator) ValidateRejection(reason string) error {
	if n := v.Config().RejectionReasonMinLength; textLen(reason) < n {
		return invalid("reason", "rejection reason must be at least %d characters", n)
	}
	return nil
}

// ValidateRevocation requires a non-empty reason.
func (v *Validator) ValidateRevocation(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return invalid("reason", "revocation reason is required")
	}
	return nil
}

// ValidateActivationWindow checks now against the effective window.
func (v *Validator) ValidateActivationWindow(from, until *time.Time, now time.Time) error {
	if from != nil && now.Before(*from) {
		return invalid("effective_from", "override is not effective until %s", from.UTC().Format(time.RFC3339))
	}
	if until != nil && now.After(*until) {
		return invalid("effective_until", "effective window ended at %s", until.UTC().Format(time.RFC3339))
	}
	return nil
}

// CheckConflicts returns advisory warnings for overrides already active on
// target. Same-type conflicts are listed first.
func (v *Validator) CheckConflicts(target TargetRef, t OverrideType, active []Record) []ConflictWarning {
	if !v.Config().ConflictCheck {
		return nil
	}
	var same, other []ConflictWarning
	for _, rec := range active {
		if rec.Status != StatusActive || rec.Target() != target {
			continue
		}
		w := ConflictWarning{OverrideID: rec.ID, OverrideType: rec.OverrideType}
		if rec.OverrideType == t {
			w.SameType = true
			w.Message = fmt.Sprintf("target %s already has an active %s override (%s)", target, t, rec.ID)
			same = append(same, w)
		} else {
			w.Message = fmt.Sprintf("target %s has an active %s override (%s)", target, rec.OverrideType, rec.ID)
			other = append(other, w)
		}
	}
	return append(same, other...)
}
