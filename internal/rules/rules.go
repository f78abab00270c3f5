package rules

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"onboardline/internal/domain"
)

//go:embed default_rules.yml
var defaultRules []byte

// AssignmentRule maps a task type to the roles that should own it.
type AssignmentRule struct {
	TaskType       string        `yaml:"task_type" json:"task_type"`
	PreferredRoles []domain.Role `yaml:"preferred_roles" json:"preferred_roles"`
	FallbackRole   domain.Role   `yaml:"fallback_role" json:"fallback_role"`
}

// EscalationRule decides when an overdue task escalates and to whom.
// EscalationChain is ordered from least to most severe.
type EscalationRule struct {
	TaskType             string         `yaml:"task_type" json:"task_type"`
	OverdueThresholdDays int            `yaml:"overdue_threshold_days" json:"overdue_threshold_days"`
	EscalationChain      []domain.Role  `yaml:"escalation_chain" json:"escalation_chain"`
	UrgencyLevel         domain.Urgency `yaml:"urgency_level" json:"urgency_level"`
}

// Tables is an immutable, versioned set of assignment and escalation rules.
type Tables struct {
	Version           string                        `yaml:"version" json:"version"`
	DefaultAssignment AssignmentRule                `yaml:"default_assignment" json:"default_assignment"`
	Assignment        []AssignmentRule              `yaml:"assignment" json:"assignment"`
	DefaultEscalation EscalationRule                `yaml:"default_escalation" json:"default_escalation"`
	Escalation        []EscalationRule              `yaml:"escalation" json:"escalation"`
	BlockerEscalation map[domain.Role][]domain.Role `yaml:"blocker_escalation" json:"blocker_escalation"`
}

// Default returns the built-in rule tables.
func Default() *Tables {
	t, err := FromYAML(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rule tables: %v", err))
	}
	return t
}

// FromYAML parses and validates rule tables.
func FromYAML(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid rules yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// FromFile reads rule tables from path.
func FromFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Load returns the tables at path, or the built-in tables when path is empty.
func Load(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return FromFile(path)
}

// Validate ensures every rule references known roles and sane thresholds.
func (t *Tables) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("rules.version is required")
	}
	if !t.DefaultAssignment.FallbackRole.Valid() {
		return fmt.Errorf("rules.default_assignment.fallback_role %q is not a role", t.DefaultAssignment.FallbackRole)
	}
	if err := validateEscalation("default_escalation", t.DefaultEscalation); err != nil {
		return err
	}
	seen := map[string]bool{}
	for i, r := range t.Assignment {
		if r.TaskType == "" {
			return fmt.Errorf("rules.assignment[%d] has empty task_type", i)
		}
		if seen[r.TaskType] {
			return fmt.Errorf("rules.assignment has duplicate task_type %s", r.TaskType)
		}
		seen[r.TaskType] = true
		for _, role := range r.PreferredRoles {
			if !role.Valid() {
				return fmt.Errorf("assignment rule %s has unknown role %q", r.TaskType, role)
			}
		}
		if !r.FallbackRole.Valid() {
			return fmt.Errorf("assignment rule %s has unknown fallback_role %q", r.TaskType, r.FallbackRole)
		}
	}
	seen = map[string]bool{}
	for i, r := range t.Escalation {
		if r.TaskType == "" {
			return fmt.Errorf("rules.escalation[%d] has empty task_type", i)
		}
		if seen[r.TaskType] {
			return fmt.Errorf("rules.escalation has duplicate task_type %s", r.TaskType)
		}
		seen[r.TaskType] = true
		if err := validateEscalation("escalation rule "+r.TaskType, r); err != nil {
			return err
		}
	}
	for owner, successors := range t.BlockerEscalation {
		if !owner.Valid() {
			return fmt.Errorf("rules.blocker_escalation has unknown role %q", owner)
		}
		if len(successors) == 0 || len(successors) > 2 {
			return fmt.Errorf("blocker escalation for %s must name 1-2 roles", owner)
		}
		for _, role := range successors {
			if !role.Valid() {
				return fmt.Errorf("blocker escalation for %s has unknown role %q", owner, role)
			}
		}
	}
	return nil
}

func validateEscalation(name string, r EscalationRule) error {
	if r.OverdueThresholdDays < 1 {
		return fmt.Errorf("%s: overdue_threshold_days must be >= 1", name)
	}
	if len(r.EscalationChain) == 0 {
		return fmt.Errorf("%s: escalation_chain is required", name)
	}
	for _, role := range r.EscalationChain {
		if !role.Valid() {
			return fmt.Errorf("%s: unknown role %q", name, role)
		}
	}
	if !r.UrgencyLevel.Valid() {
		return fmt.Errorf("%s: unknown urgency_level %q", name, r.UrgencyLevel)
	}
	return nil
}

// AssignmentFor returns the rule for taskType, or the default rule.
func (t *Tables) AssignmentFor(taskType string) AssignmentRule {
	for _, r := range t.Assignment {
		if r.TaskType == taskType {
			return r
		}
	}
	r := t.DefaultAssignment
	r.TaskType = taskType
	return r
}

// EscalationFor returns the rule for taskType, or the default rule.
func (t *Tables) EscalationFor(taskType string) EscalationRule {
	for _, r := range t.Escalation {
		if r.TaskType == taskType {
			return r
		}
	}
	r := t.DefaultEscalation
	r.TaskType = taskType
	return r
}

// BlockerSuccessors returns the roles notified when a task owned by owner becomes a blocker.
func (t *Tables) BlockerSuccessors(owner domain.Role) []domain.Role {
	if roles, ok := t.BlockerEscalation[owner]; ok {
		return roles
	}
	return []domain.Role{domain.RoleProjectManager}
}
