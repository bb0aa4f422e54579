package override

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable rules of the override engine.
type Config struct {
	// JustificationMinLength is the minimum justification length per risk level.
	JustificationMinLength map[RiskLevel]int `yaml:"justificationMinLength"`
	// EmergencyJustificationMinLength applies on top of the risk minimum when is_emergency is set.
	EmergencyJustificationMinLength int `yaml:"emergencyJustificationMinLength"`
	// RejectionReasonMinLength is the minimum length of a rejection reason.
	RejectionReasonMinLength int `yaml:"rejectionReasonMinLength"`

	KeywordCheck      bool                      `yaml:"keywordCheck"`
	MinKeywordMatches int                       `yaml:"minKeywordMatches"`
	KeywordRules      map[OverrideType][]string `yaml:"keywordRules"`

	ConflictCheck       bool `yaml:"conflictCheck"`
	ExpiringSoonDays    int  `yaml:"expiringSoonDays"`
	RecentActivityLimit int  `yaml:"recentActivityLimit"`
}

// DefaultConfig returns the default rules.
func DefaultConfig() *Config {
	return &Config{
		JustificationMinLength: map[RiskLevel]int{
			RiskLow:      20,
			RiskMedium:   30,
			RiskHigh:     50,
			RiskCritical: 100,
		},
		EmergencyJustificationMinLength: 50,
		RejectionReasonMinLength:        10,
		KeywordCheck:                    true,
		MinKeywordMatches:               2,
		KeywordRules: map[OverrideType][]string{
			TypeAgeRequirement:        {"age", "parent", "guardian", "consent", "supervis", "mature", "birthday"},
			TypeCredentialRequirement: {"credential", "certificat", "qualif", "training", "licen", "verified", "experience"},
			TypeCapacityLimit:         {"capacity", "limit", "space", "venue", "demand", "staff", "shortage"},
			TypeVerificationBypass:    {"verif", "identity", "check", "garda", "vetting", "document", "pending"},
			TypeEmergencyAccess:       {"emergency", "urgent", "immediate", "incident", "safety", "critical", "access"},
		},
		ConflictCheck:       true,
		ExpiringSoonDays:    7,
		RecentActivityLimit: 10,
	}
}

// LoadConfig loads rules from a YAML file. If the file does not exist,
// default rules are returned. Keys absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read override config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse override config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid override config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every risk level has a positive minimum and that
// rules refer only to known override types.
func (c *Config) Validate() error {
	for _, r := range AllRiskLevels {
		if c.JustificationMinLength[r] <= 0 {
			return fmt.Errorf("justificationMinLength.%s must be positive", r)
		}
	}
	for t := range c.KeywordRules {
		if !t.Valid() {
			return fmt.Errorf("keywordRules: unknown override type %q", t)
		}
	}
	if c.KeywordCheck && c.MinKeywordMatches <= 0 {
		return fmt.Errorf("minKeywordMatches must be positive when keywordCheck is enabled")
	}
	if c.ExpiringSoonDays <= 0 || c.RecentActivityLimit <= 0 {
		return fmt.Errorf("expiringSoonDays and recentActivityLimit must be positive")
	}
	return nil
}
