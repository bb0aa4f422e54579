package override

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Special-Olympics-Ireland/SOI-Volunteer-Management-System-sub001/pkg/database"
)

// QueryFacade serves read-only projections of overrides for reporting.
type QueryFacade struct {
	db        *gorm.DB
	validator *Validator
	now       func() time.Time
}

// NewQueryFacade creates a facade. A nil validator uses the default rules.
func NewQueryFacade(db *gorm.DB, validator *Validator, now func() time.Time) *QueryFacade {
	if validator == nil {
		validator = NewValidator(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &QueryFacade{db: db, validator: validator, now: now}
}

// Queries returns a facade sharing the service's database, rules and clock.
func (s *Service) Queries() *QueryFacade {
	return NewQueryFacade(s.db, s.validator, s.now)
}

// OverrideList is a paginated list of overrides.
type OverrideList struct {
	Overrides     []*Override `json:"overrides"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	TotalSize     int         `json:"totalSize"`
}

// ActivityEntry is one line of the recent-activity page in Statistics.
type ActivityEntry struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	OverrideType OverrideType `json:"overrideType"`
	Status       Status       `json:"status"`
	RiskLevel    RiskLevel    `json:"riskLevel"`
	RequestedBy  string       `json:"requestedBy"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Statistics aggregates override counts.
type Statistics struct {
	Total          int                  `json:"total"`
	ByStatus       map[Status]int       `json:"byStatus"`
	ByType         map[OverrideType]int `json:"byType"`
	ByRiskLevel    map[RiskLevel]int    `json:"byRiskLevel"`
	Emergency      int                  `json:"emergency"`
	HighRisk       int                  `json:"highRisk"`
	RecentActivity []ActivityEntry      `json:"recentActivity"`
}

func toOverrides(records []Record) []*Override {
	out := make([]*Override, len(records))
	for i := range records {
		out[i] = records[i].ToOverride()
	}
	return out
}

// Pending returns PENDING overrides, highest priority first. A non-empty
// forActor limits the result to that requester.
func (q *QueryFacade) Pending(ctx context.Context, forActor string) ([]*Override, error) {
	query := q.db.WithContext(ctx).Where("status = ?", StatusPending)
	if forActor != "" {
		query = query.Where("requested_by = ?", forActor)
	}
	var records []Record
	if err := query.Order("priority_level ASC").Order("requested_at ASC").Find(&records).Error; err != nil {
		return nil, &PersistenceError{Op: "list pending overrides", Err: err}
	}
	return toOverrides(records), nil
}

// Active returns ACTIVE overrides that have not run past their window,
// optionally limited to one target.
func (q *QueryFacade) Active(ctx context.Context, target *TargetRef) ([]*Override, error) {
	query := q.db.WithContext(ctx).
		Where("status = ?", StatusActive).
		Where("(effective_until IS NULL OR effective_until >= ?)", q.now().UTC())
	if target != nil && !target.IsZero() {
		query = query.Where("target_type = ? AND target_id = ?", target.Type, target.ID)
	}
	var records []Record
	if err := query.Order("priority_level ASC").Order("requested_at ASC").Find(&records).Error; err != nil {
		return nil, &PersistenceError{Op: "list active overrides", Err: err}
	}
	return toOverrides(records), nil
}

// Expiring returns ACTIVE overrides whose effective_until falls between now
// and now+daysAhead, soonest first. daysAhead <= 0 uses the configured default.
func (q *QueryFacade) Expiring(ctx context.Context, daysAhead int) ([]*Override, error) {
	if daysAhead <= 0 {
		daysAhead = q.validator.Config().ExpiringSoonDays
	}
	now := q.now().UTC()
	var records []Record
	err := q.db.WithContext(ctx).
		Where("status = ? AND effective_until IS NOT NULL AND effective_until >= ? AND effective_until <= ?",
			StatusActive, now, now.AddDate(0, 0, daysAhead)).
		Order("effective_until ASC").
		Find(&records).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list expiring overrides", Err: err}
	}
	return toOverrides(records), nil
}

// MonitoringOverdue returns ACTIVE monitored overrides whose last check is
// older than their monitoring frequency.
func (q *QueryFacade) MonitoringOverdue(ctx context.Context) ([]*Override, error) {
	var records []Record
	err := q.db.WithContext(ctx).
		Where("status = ? AND requires_monitoring = ?", StatusActive, true).
		Order("priority_level ASC").
		Find(&records).Error
	if err != nil {
		return nil, &PersistenceError{Op: "list monitored overrides", Err: err}
	}
	now := q.now()
	var due []*Override
	for _, o := range toOverrides(records) {
		if o.MonitoringDue(now) {
			due = append(due, o)
		}
	}
	return due, nil
}

type groupCount struct {
	GroupKey string
	Total    int
}

func (q *QueryFacade) countBy(ctx context.Context, column string) ([]groupCount, error) {
	var rows []groupCount
	err := q.db.WithContext(ctx).Model(&Record{}).
		Select(column + " AS group_key, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count overrides by %s: %w", column, err)
	}
	return rows, nil
}

// Statistics returns aggregate counts and the most recently updated overrides.
func (q *QueryFacade) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{
		ByStatus:    make(map[Status]int),
		ByType:      make(map[OverrideType]int),
		ByRiskLevel: make(map[RiskLevel]int),
	}

	byStatus, err := q.countBy(ctx, "status")
	if err != nil {
		return nil, &PersistenceError{Op: "statistics", Err: err}
	}
	for _, row := range byStatus {
		stats.ByStatus[Status(row.GroupKey)] = row.Total
		stats.Total += row.Total
	}

	byType, err := q.countBy(ctx, "override_type")
	if err != nil {
		return nil, &PersistenceError{Op: "statistics", Err: err}
	}
	for _, row := range byType {
		stats.ByType[OverrideType(row.GroupKey)] = row.Total
	}

	byRisk, err := q.countBy(ctx, "risk_level")
	if err != nil {
		return nil, &PersistenceError{Op: "statistics", Err: err}
	}
	for _, row := range byRisk {
		stats.ByRiskLevel[RiskLevel(row.GroupKey)] = row.Total
	}
	stats.HighRisk = stats.ByRiskLevel[RiskHigh] + stats.ByRiskLevel[RiskCritical]

	var emergency int64
	if err := q.db.WithContext(ctx).Model(&Record{}).Where("is_emergency = ?", true).Count(&emergency).Error; err != nil {
		return nil, &PersistenceError{Op: "statistics", Err: err}
	}
	stats.Emergency = int(emergency)

	var recent []Record
	err = q.db.WithContext(ctx).
		Order("updated_at DESC").Order("id ASC").
		Limit(q.validator.Config().RecentActivityLimit).
		Find(&recent).Error
	if err != nil {
		return nil, &PersistenceError{Op: "statistics", Err: err}
	}
	stats.RecentActivity = make([]ActivityEntry, len(recent))
	for i, r := range recent {
		stats.RecentActivity[i] = ActivityEntry{
			ID:           r.ID,
			Title:        r.Title,
			OverrideType: r.OverrideType,
			Status:       r.Status,
			RiskLevel:    r.RiskLevel,
			RequestedBy:  r.RequestedBy,
			UpdatedAt:    r.UpdatedAt,
		}
	}
	return stats, nil
}

// Search returns overrides matching a filter expression, newest request
// first. pageToken is the NextPageToken of the previous page.
func (q *QueryFacade) Search(ctx context.Context, expr string, pageSize int, pageToken string) (*OverrideList, error) {
	filter, err := ParseFilter(expr)
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func() *gorm.DB {
		query := q.db.WithContext(ctx).Model(&Record{})
		if filter.SQL != "" {
			query = query.Where(filter.SQL, filter.Args...)
		}
		return query
	}

	var totalSize int64
	if err := buildQuery().Count(&totalSize).Error; err != nil {
		return nil, &PersistenceError{Op: "count overrides", Err: err}
	}

	query := buildQuery().Order("requested_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		cursor, err := database.ParseCursor(pageToken)
		if err != nil {
			return nil, invalid("pageToken", "invalid page token: %v", err)
		}
		query = cursor.After(query, "requested_at")
	}

	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, &PersistenceError{Op: "search overrides", Err: err}
	}

	var nextToken string
	if len(records) > pageSize {
		last := records[pageSize-1]
		nextToken = database.Cursor{At: last.RequestedAt, ID: last.ID}.String()
		records = records[:pageSize]
	}
	return &OverrideList{Overrides: toOverrides(records), NextPageToken: nextToken, TotalSize: int(totalSize)}, nil
}
