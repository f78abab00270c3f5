package assign

import (
	"strings"
	"time"

	"onboardline/internal/domain"
	"onboardline/internal/rules"
)

// Default day offsets from "now" per task family.
const (
	kickoffDays            = 1
	requirementsDays       = 2
	setupDays              = 3
	criticalSetupDays      = 5
	testingDays            = 5
	criticalTestingDays    = 7
	securityDays           = 5
	securityLargeOrgDays   = 7
	goLiveBufferDays       = 3
	goLiveDefaultHorizon   = 30
	defaultTaskOffsetDays  = 7
	criticalIntegrationTag = "sis"
)

// Assignment is the owning role and, when a stakeholder holds it, their contact.
type Assignment struct {
	OwnerRole  domain.Role     `json:"owner_role"`
	AssignedTo *domain.Contact `json:"assigned_to,omitempty"`
}

// Resolver derives ownership, priority and due dates for new tasks.
type Resolver struct {
	Rules *rules.Tables
	Now   func() time.Time
}

func New(tables *rules.Tables) Resolver {
	return Resolver{Rules: tables, Now: time.Now}
}

func (r Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Resolver) tables() *rules.Tables {
	if r.Rules != nil {
		return r.Rules
	}
	return rules.Default()
}

// Assign walks the preferred roles in order and picks the first stakeholder holding one.
// Stakeholders sharing a role are resolved by input order.
func (r Resolver) Assign(taskType string, stakeholders []domain.Stakeholder) Assignment {
	rule := r.tables().AssignmentFor(taskType)
	for _, role := range rule.PreferredRoles {
		if s, ok := firstWithRole(stakeholders, role); ok {
			c := s.Contact()
			return Assignment{OwnerRole: role, AssignedTo: &c}
		}
	}
	out := Assignment{OwnerRole: rule.FallbackRole}
	if s, ok := firstWithRole(stakeholders, rule.FallbackRole); ok {
		c := s.Contact()
		out.AssignedTo = &c
	}
	return out
}

func firstWithRole(stakeholders []domain.Stakeholder, role domain.Role) (domain.Stakeholder, bool) {
	for _, s := range stakeholders {
		if s.Role == role {
			return s, true
		}
	}
	return domain.Stakeholder{}, false
}

// Priority classifies a task type. It is total.
func Priority(taskType string) domain.Priority {
	t := strings.ToLower(taskType)
	switch {
	case strings.Contains(t, "security"), t == criticalIntegrationTag+"_setup":
		return domain.PriorityCritical
	case strings.Contains(t, "kickoff"), strings.Contains(t, "requirements"),
		isGoLive(t), strings.Contains(t, "setup"):
		return domain.PriorityHigh
	case strings.Contains(t, "testing"), strings.Contains(t, "planning"):
		return domain.PriorityMedium
	}
	return domain.PriorityMedium
}

// Priority classifies a task type. See the package-level Priority.
func (r Resolver) Priority(taskType string) domain.Priority {
	return Priority(taskType)
}

// DueDate returns the due date for a new task relative to the resolver clock.
func (r Resolver) DueDate(taskType string, goLive *time.Time, size domain.CustomerSize) time.Time {
	return DueDateAt(r.now(), taskType, goLive, size)
}

// DueDateAt returns a date, at midnight in now's location, at least one day after now.
func DueDateAt(now time.Time, taskType string, goLive *time.Time, size domain.CustomerSize) time.Time {
	today := startOfDay(now)
	t := strings.ToLower(taskType)
	critical := strings.HasPrefix(t, criticalIntegrationTag+"_")

	days := defaultTaskOffsetDays
	switch {
	case isGoLive(t):
		if goLive == nil {
			days = goLiveDefaultHorizon
			break
		}
		target := startOfDay(goLive.In(now.Location())).AddDate(0, 0, -goLiveBufferDays)
		if !target.After(today) {
			return today.AddDate(0, 0, 1)
		}
		return target
	case strings.Contains(t, "security"), strings.Contains(t, "compliance"):
		days = securityDays
		if size == domain.SizeLarge || size == domain.SizeEnterprise {
			days = securityLargeOrgDays
		}
	case strings.Contains(t, "kickoff"):
		days = kickoffDays
	case strings.Contains(t, "requirements"):
		days = requirementsDays
	case strings.Contains(t, "setup"):
		days = setupDays
		if critical {
			days = criticalSetupDays
		}
	case strings.Contains(t, "testing"):
		days = testingDays
		if critical {
			days = criticalTestingDays
		}
	}
	return today.AddDate(0, 0, days)
}

func isGoLive(t string) bool {
	return strings.Contains(t, "go_live") || strings.Contains(t, "golive") || strings.Contains(t, "go-live")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
