package override

import (
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
)

// Record is the GORM model for an admin override.
type Record struct {
	ID                  string                                 `gorm:"primaryKey;column:id;type:varchar(36)"`
	OverrideType        OverrideType                           `gorm:"column:override_type;index:idx_override_type_status,priority:1;not null"`
	Status              Status                                 `gorm:"column:status;index:idx_override_type_status,priority:2;index:idx_override_status_until,priority:1;not null"`
	TargetType          string                                 `gorm:"column:target_type;index:idx_override_target,priority:1;not null"`
	TargetID            string                                 `gorm:"column:target_id;index:idx_override_target,priority:2;not null"`
	Title               string                                 `gorm:"column:title;not null"`
	Description         string                                 `gorm:"column:description;type:text"`
	Reason              string                                 `gorm:"column:reason"`
	Justification       string                                 `gorm:"column:justification;type:text;not null"`
	BusinessCase        string                                 `gorm:"column:business_case;type:text"`
	RiskLevel           RiskLevel                              `gorm:"column:risk_level;index;not null"`
	RiskAssessment      string                                 `gorm:"column:risk_assessment;type:text"`
	ImpactLevel         ImpactLevel                            `gorm:"column:impact_level;not null"`
	ImpactAssessment    string                                 `gorm:"column:impact_assessment;type:text"`
	IsEmergency         bool                                   `gorm:"column:is_emergency;not null;default:false"`
	PriorityLevel       int                                    `gorm:"column:priority_level;not null;default:5"`
	OriginalValue       database.JSONAny                       `gorm:"column:original_value;type:text"`
	OverrideValue       database.JSONAny                       `gorm:"column:override_value;type:text"`
	RequestedBy         string                                 `gorm:"column:requested_by;index;not null"`
	ApprovedBy          string                                 `gorm:"column:approved_by"`
	ReviewedBy          string                                 `gorm:"column:reviewed_by"`
	StatusChangedBy     string                                 `gorm:"column:status_changed_by"`
	RequestedAt         time.Time                              `gorm:"column:requested_at;not null"`
	ApprovedAt          *time.Time                             `gorm:"column:approved_at"`
	AppliedAt           *time.Time                             `gorm:"column:applied_at"`
	RevokedAt           *time.Time                             `gorm:"column:revoked_at"`
	StatusChangedAt     *time.Time                             `gorm:"column:status_changed_at"`
	EffectiveFrom       *time.Time                             `gorm:"column:effective_from"`
	EffectiveUntil      *time.Time                             `gorm:"column:effective_until;index:idx_override_status_until,priority:2"`
	ApprovalNotes       string                                 `gorm:"column:approval_notes;type:text"`
	ReviewNotes         string                                 `gorm:"column:review_notes;type:text"`
	RejectionReason     string                                 `gorm:"column:rejection_reason;type:text"`
	RevocationReason    string                                 `gorm:"column:revocation_reason;type:text"`
	CompletionNotes     string                                 `gorm:"column:completion_notes;type:text"`
	RequiresMonitoring  bool                                   `gorm:"column:requires_monitoring;not null;default:false"`
	MonitoringFrequency MonitoringFrequency                    `gorm:"column:monitoring_frequency"`
	LastMonitoredAt     *time.Time                             `gorm:"column:last_monitored_at"`
	CommunicationLog    database.JSONList[CommunicationEntry]  `gorm:"column:communication_log;type:text"`
	Tags                database.JSONStringSlice               `gorm:"column:tags;type:text"`
	Version             int                                    `gorm:"column:version;not null;default:1"`
	CreatedAt           time.Time                              `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt           time.Time                              `gorm:"column:updated_at;not null;autoUpdateTime:false"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "admin_overrides" }

// Target returns the overridden entity reference.
func (r *Record) Target() TargetRef { return TargetRef{Type: r.TargetType, ID: r.TargetID} }

// appendLog adds a communication log entry. Entries are never removed.
func (r *Record) appendLog(at time.Time, actor, message string) {
	r.CommunicationLog = append(r.CommunicationLog, CommunicationEntry{
		Timestamp: at.UTC(),
		Message:   message,
		Actor:     actor,
	})
}

// setOnce assigns *dst = at only if it has never been set.
func setOnce(dst **time.Time, at time.Time) {
	if *dst == nil {
		t := at.UTC()
		*dst = &t
	}
}

// ToOverride converts the stored record to its API form. Times are UTC.
func (r *Record) ToOverride() *Override {
	o := &Override{
		ID:                  r.ID,
		OverrideType:        r.OverrideType,
		Status:              r.Status,
		Target:              r.Target(),
		Title:               r.Title,
		Description:         r.Description,
		Reason:              r.Reason,
		Justification:       r.Justification,
		BusinessCase:        r.BusinessCase,
		RiskLevel:           r.RiskLevel,
		RiskAssessment:      r.RiskAssessment,
		ImpactLevel:         r.ImpactLevel,
		ImpactAssessment:    r.ImpactAssessment,
		IsEmergency:         r.IsEmergency,
		PriorityLevel:       r.PriorityLevel,
		OriginalValue:       map[string]any(r.OriginalValue),
		OverrideValue:       map[string]any(r.OverrideValue),
		RequestedBy:         r.RequestedBy,
		ApprovedBy:          r.ApprovedBy,
		ReviewedBy:          r.ReviewedBy,
		StatusChangedBy:     r.StatusChangedBy,
		RequestedAt:         r.RequestedAt.UTC(),
		ApprovedAt:          utcPtr(r.ApprovedAt),
		AppliedAt:           utcPtr(r.AppliedAt),
		RevokedAt:           utcPtr(r.RevokedAt),
		StatusChangedAt:     utcPtr(r.StatusChangedAt),
		EffectiveFrom:       utcPtr(r.EffectiveFrom),
		EffectiveUntil:      utcPtr(r.EffectiveUntil),
		ApprovalNotes:       r.ApprovalNotes,
		ReviewNotes:         r.ReviewNotes,
		RejectionReason:     r.RejectionReason,
		RevocationReason:    r.RevocationReason,
		CompletionNotes:     r.CompletionNotes,
		RequiresMonitoring:  r.RequiresMonitoring,
		MonitoringFrequency: r.MonitoringFrequency,
		LastMonitoredAt:     utcPtr(r.LastMonitoredAt),
		CommunicationLog:    []CommunicationEntry(r.CommunicationLog),
		Tags:                []string(r.Tags),
		Version:             r.Version,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
	if o.CommunicationLog == nil {
		o.CommunicationLog = []CommunicationEntry{}
	}
	if o.Tags == nil {
		o.Tags = []string{}
	}
	return o
}

// auditSnapshot lists exactly the fields recorded as before/after state in
// the audit trail. Free text other than the current decision note is left
// out; the log entry carries it.
func auditSnapshot(r *Record) map[string]any {
	m := map[string]any{
		"status":         string(r.Status),
		"override_type":  string(r.OverrideType),
		"risk_level":     string(r.RiskLevel),
		"impact_level":   string(r.ImpactLevel),
		"is_emergency":   r.IsEmergency,
		"priority_level": r.PriorityLevel,
		"version":        r.Version,
	}
	if r.ApprovedBy != "" {
		m["approved_by"] = r.ApprovedBy
	}
	if r.StatusChangedBy != "" {
		m["status_changed_by"] = r.StatusChangedBy
	}
	for name, ts := range map[string]*time.Time{
		"approved_at":       r.ApprovedAt,
		"applied_at":        r.AppliedAt,
		"revoked_at":        r.RevokedAt,
		"status_changed_at": r.StatusChangedAt,
		"effective_from":    r.EffectiveFrom,
		"effective_until":   r.EffectiveUntil,
		"last_monitored_at": r.LastMonitoredAt,
	} {
		if ts != nil {
			m[name] = ts.UTC().Format(time.RFC3339Nano)
		}
	}
	return m
}

// normalizeTags lowercases, trims and de-duplicates tags, returned sorted.
func normalizeTags(tags []string) database.JSONStringSlice {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set.Add(t)
		}
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
