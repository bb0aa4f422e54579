// Package override implements the admin override engine: a governed state
// machine that lets privileged staff bypass a business rule on a target
// object, with justification, risk classification, approval, a bounded
// effective window, monitoring, and one audit record per transition.
package override

import (
	"slices"
	"strings"
	"time"
)

// OverrideType identifies which business rule is being bypassed.
type OverrideType string

const (
	TypeAgeRequirement        OverrideType = "AGE_REQUIREMENT"
	TypeCredentialRequirement OverrideType = "CREDENTIAL_REQUIREMENT"
	TypeCapacityLimit         OverrideType = "CAPACITY_LIMIT"
	TypeDeadlineExtension     OverrideType = "DEADLINE_EXTENSION"
	TypeStatusChange          OverrideType = "STATUS_CHANGE"
	TypeAssignmentRule        OverrideType = "ASSIGNMENT_RULE"
	TypeVerificationBypass    OverrideType = "VERIFICATION_BYPASS"
	TypePrerequisiteSkip      OverrideType = "PREREQUISITE_SKIP"
	TypeRoleRestriction       OverrideType = "ROLE_RESTRICTION"
	TypeSystemRule            OverrideType = "SYSTEM_RULE"
	TypeDataModification      OverrideType = "DATA_MODIFICATION"
	TypeEmergencyAccess       OverrideType = "EMERGENCY_ACCESS"
	TypeOther                 OverrideType = "OTHER"
)

// AllTypes lists every override type in declaration order.
var AllTypes = []OverrideType{
	TypeAgeRequirement, TypeCredentialRequirement, TypeCapacityLimit,
	TypeDeadlineExtension, TypeStatusChange, TypeAssignmentRule,
	TypeVerificationBypass, TypePrerequisiteSkip, TypeRoleRestriction,
	TypeSystemRule, TypeDataModification, TypeEmergencyAccess, TypeOther,
}

// Valid reports whether t is a known override type.
func (t OverrideType) Valid() bool { return slices.Contains(AllTypes, t) }

// Status is the lifecycle state of an override.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusActive    Status = "ACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusRevoked   Status = "REVOKED"
	StatusCompleted Status = "COMPLETED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusApproved, StatusRejected, StatusActive,
	StatusExpired, StatusRevoked, StatusCompleted,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return slices.Contains(AllStatuses, s) }

// RiskLevel classifies how dangerous an override is.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// AllRiskLevels lists risk levels from lowest to highest.
var AllRiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool { return slices.Contains(AllRiskLevels, r) }

// IsHigh reports whether r is HIGH or CRITICAL.
func (r RiskLevel) IsHigh() bool { return r == RiskHigh || r == RiskCritical }

// ImpactLevel classifies how far the effects of an override reach.
type ImpactLevel string

const (
	ImpactMinimal ImpactLevel = "MINIMAL"
	ImpactLow     ImpactLevel = "LOW"
	ImpactMedium  ImpactLevel = "MEDIUM"
	ImpactHigh    ImpactLevel = "HIGH"
	ImpactSevere  ImpactLevel = "SEVERE"
)

// AllImpactLevels lists impact levels from smallest to largest.
var AllImpactLevels = []ImpactLevel{ImpactMinimal, ImpactLow, ImpactMedium, ImpactHigh, ImpactSevere}

// Valid reports whether i is a known impact level.
func (i ImpactLevel) Valid() bool { return slices.Contains(AllImpactLevels, i) }

// MonitoringFrequency is how often an active override must be checked.
type MonitoringFrequency string

const (
	MonitorHourly   MonitoringFrequency = "HOURLY"
	MonitorDaily    MonitoringFrequency = "DAILY"
	MonitorWeekly   MonitoringFrequency = "WEEKLY"
	MonitorMonthly  MonitoringFrequency = "MONTHLY"
	MonitorAsNeeded MonitoringFrequency = "AS_NEEDED"
)

var monitoringIntervals = map[MonitoringFrequency]time.Duration{
	MonitorHourly:  time.Hour,
	MonitorDaily:   24 * time.Hour,
	MonitorWeekly:  7 * 24 * time.Hour,
	MonitorMonthly: 30 * 24 * time.Hour,
}

// Valid reports whether f is a known frequency.
func (f MonitoringFrequency) Valid() bool {
	_, ok := monitoringIntervals[f]
	return ok || f == MonitorAsNeeded
}

// Interval returns the monitoring cadence, or 0 for AS_NEEDED.
func (f MonitoringFrequency) Interval() time.Duration { return monitoringIntervals[f] }

// ParseType normalizes user input to an OverrideType. Unknown input fails Valid.
func ParseType(s string) OverrideType { return OverrideType(strings.ToUpper(strings.TrimSpace(s))) }

// ParseStatus normalizes user input to a Status.
func ParseStatus(s string) Status { return Status(strings.ToUpper(strings.TrimSpace(s))) }

// ParseRiskLevel normalizes user input to a RiskLevel.
func ParseRiskLevel(s string) RiskLevel { return RiskLevel(strings.ToUpper(strings.TrimSpace(s))) }

// ParseImpactLevel normalizes user input to an ImpactLevel.
func ParseImpactLevel(s string) ImpactLevel {
	return ImpactLevel(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseFrequency normalizes user input to a MonitoringFrequency.
func ParseFrequency(s string) MonitoringFrequency {
	return MonitoringFrequency(strings.ToUpper(strings.TrimSpace(s)))
}

// TargetRef is a polymorphic reference to the entity an override applies to.
// The engine never dereferences it.
type TargetRef struct {
	Type string `json:"type" yaml:"type"`
	ID   string `json:"id" yaml:"id"`
}

// IsZero reports whether no target is set.
func (t TargetRef) IsZero() bool { return t.Type == "" && t.ID == "" }

func (t TargetRef) String() string { return t.Type + "/" + t.ID }

// CommunicationEntry is one line of an override's communication log.
type CommunicationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Actor     string    `json:"actor"`
}

// Override is the API-facing view of an override record.
type Override struct {
	ID                  string               `json:"id"`
	OverrideType        OverrideType         `json:"overrideType"`
	Status              Status               `json:"status"`
	Target              TargetRef            `json:"target"`
	Title               string               `json:"title"`
	Description         string               `json:"description,omitempty"`
	Reason              string               `json:"reason,omitempty"`
	Justification       string               `json:"justification"`
	BusinessCase        string               `json:"businessCase,omitempty"`
	RiskLevel           RiskLevel            `json:"riskLevel"`
	RiskAssessment      string               `json:"riskAssessment,omitempty"`
	ImpactLevel         ImpactLevel          `json:"impactLevel"`
	ImpactAssessment    string               `json:"impactAssessment,omitempty"`
	IsEmergency         bool                 `json:"isEmergency"`
	PriorityLevel       int                  `json:"priorityLevel"`
	OriginalValue       map[string]any       `json:"originalValue,omitempty"`
	OverrideValue       map[string]any       `json:"overrideValue,omitempty"`
	RequestedBy         string               `json:"requestedBy"`
	ApprovedBy          string               `json:"approvedBy,omitempty"`
	ReviewedBy          string               `json:"reviewedBy,omitempty"`
	StatusChangedBy     string               `json:"statusChangedBy,omitempty"`
	RequestedAt         time.Time            `json:"requestedAt"`
	ApprovedAt          *time.Time           `json:"approvedAt,omitempty"`
	AppliedAt           *time.Time           `json:"appliedAt,omitempty"`
	RevokedAt           *time.Time           `json:"revokedAt,omitempty"`
	StatusChangedAt     *time.Time           `json:"statusChangedAt,omitempty"`
	EffectiveFrom       *time.Time           `json:"effectiveFrom,omitempty"`
	EffectiveUntil      *time.Time           `json:"effectiveUntil,omitempty"`
	ApprovalNotes       string               `json:"approvalNotes,omitempty"`
	ReviewNotes         string               `json:"reviewNotes,omitempty"`
	RejectionReason     string               `json:"rejectionReason,omitempty"`
	RevocationReason    string               `json:"revocationReason,omitempty"`
	CompletionNotes     string               `json:"completionNotes,omitempty"`
	RequiresMonitoring  bool                 `json:"requiresMonitoring"`
	MonitoringFrequency MonitoringFrequency  `json:"monitoringFrequency,omitempty"`
	LastMonitoredAt     *time.Time           `json:"lastMonitoredAt,omitempty"`
	CommunicationLog    []CommunicationEntry `json:"communicationLog"`
	Tags                []string             `json:"tags"`
	Version             int                  `json:"version"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// IsEffective reports whether the override currently applies. It is false
// past effective_until even if the stored status has not yet caught up.
func (o *Override) IsEffective(now time.Time) bool {
	if o.Status != StatusActive {
		return false
	}
	if o.EffectiveFrom != nil && now.Before(*o.EffectiveFrom) {
		return false
	}
	if o.EffectiveUntil != nil && now.After(*o.EffectiveUntil) {
		return false
	}
	return true
}

// IsExpired reports whether an active override has run past its window.
func (o *Override) IsExpired(now time.Time) bool {
	if o.Status == StatusExpired {
		return true
	}
	return o.Status == StatusActive && o.EffectiveUntil != nil && now.After(*o.EffectiveUntil)
}

// Duration is the length of the effective window, or 0 when open-ended.
func (o *Override) Duration() time.Duration {
	if o.EffectiveFrom == nil || o.EffectiveUntil == nil {
		return 0
	}
	return o.EffectiveUntil.Sub(*o.EffectiveFrom)
}

var (
	riskWeights   = map[RiskLevel]int{RiskLow: 1, RiskMedium: 2, RiskHigh: 3, RiskCritical: 4}
	impactWeights = map[ImpactLevel]int{ImpactMinimal: 1, ImpactLow: 2, ImpactMedium: 3, ImpactHigh: 4, ImpactSevere: 5}
)

// RiskScore combines risk and impact into a 1..100 score. Emergencies
// carry a flat bonus.
func (o *Override) RiskScore() int {
	r, i := riskWeights[o.RiskLevel], impactWeights[o.ImpactLevel]
	if r == 0 || i == 0 {
		return 0
	}
	score := r * i * 5 // max 4*5*5 = 100
	if o.IsEmergency {
		score += 20
	}
	return min(score, 100)
}

// MonitoringDue reports whether a monitored override has gone longer than
// its frequency interval without a monitoring update.
func (o *Override) MonitoringDue(now time.Time) bool {
	if !o.RequiresMonitoring || o.Status != StatusActive {
		return false
	}
	interval := o.MonitoringFrequency.Interval()
	if interval == 0 {
		return false
	}
	last := o.RequestedAt
	if o.AppliedAt != nil {
		last = *o.AppliedAt
	}
	if o.LastMonitoredAt != nil {
		last = *o.LastMonitoredAt
	}
	return now.Sub(last) > interval
}

// CanBeApprovedBy reports whether actor may approve this override right now.
func (o *Override) CanBeApprovedBy(actor string) bool {
	return o.Status == StatusPending && actor != "" && actor != o.RequestedBy
}
