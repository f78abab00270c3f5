package assign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
	"onboardline/internal/rules"
)

var fixedNow = time.Date(2026, 4, 14, 15, 30, 0, 0, time.UTC)

func stakeholders() []domain.Stakeholder {
	return []domain.Stakeholder{
		{ID: "s-owner", Role: domain.RoleOwner, Name: "Olive", Email: "olive@example.edu"},
		{ID: "s-tl-1", Role: domain.RoleTechnicalLead, Name: "Tariq", Email: "tariq@example.edu"},
		{ID: "s-tl-2", Role: domain.RoleTechnicalLead, Name: "Tess", Email: "tess@example.edu"},
		{ID: "s-pm", Role: domain.RoleProjectManager, Name: "Pat", Email: "pat@example.edu"},
	}
}

func newResolver() Resolver {
	return Resolver{Rules: rules.Default(), Now: func() time.Time { return fixedNow }}
}

func TestAssignPrefersFirstMatchingRole(t *testing.T) {
	r := newResolver()
	// sis_setup prefers it_contact then technical_lead; no it_contact is present.
	got := r.Assign("sis_setup", stakeholders())
	assert.Equal(t, domain.RoleTechnicalLead, got.OwnerRole)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "s-tl-1", got.AssignedTo.StakeholderID)
}

func TestAssignFallsBackWithoutContact(t *testing.T) {
	r := newResolver()
	got := r.Assign("user_training", []domain.Stakeholder{
		{ID: "s-it", Role: domain.RoleITContact, Email: "it@example.edu"},
	})
	assert.Equal(t, domain.RoleOwner, got.OwnerRole)
	assert.Nil(t, got.AssignedTo)
}

func TestAssignUnknownTypeUsesDefaultRule(t *testing.T) {
	r := newResolver()
	got := r.Assign("mystery", stakeholders())
	assert.Equal(t, domain.RoleProjectManager, got.OwnerRole)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, "s-pm", got.AssignedTo.StakeholderID)
}

func TestAssignIsDeterministic(t *testing.T) {
	r := newResolver()
	for _, tt := range []string{"kickoff_meeting", "sis_setup", "api_testing", "mystery", ""} {
		a := r.Assign(tt, stakeholders())
		b := r.Assign(tt, stakeholders())
		assert.Equal(t, a, b, tt)
		assert.Equal(t, Priority(tt), Priority(tt))
		assert.Equal(t, r.DueDate(tt, nil, domain.SizeSmall), r.DueDate(tt, nil, domain.SizeSmall))
	}
}

func TestPriority(t *testing.T) {
	cases := map[string]domain.Priority{
		"security_review":        domain.PriorityCritical,
		"sis_setup":              domain.PriorityCritical,
		"crm_setup":              domain.PriorityHigh,
		"kickoff_meeting":        domain.PriorityHigh,
		"requirements_gathering": domain.PriorityHigh,
		"go_live_preparation":    domain.PriorityHigh,
		"sis_testing":            domain.PriorityMedium,
		"capacity_planning":      domain.PriorityMedium,
		"user_training":          domain.PriorityMedium,
		"":                       domain.PriorityMedium,
	}
	for in, want := range cases {
		assert.Equal(t, want, Priority(in), in)
	}
}

func TestDueDateOffsets(t *testing.T) {
	today := time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		taskType string
		size     domain.CustomerSize
		days     int
	}{
		{"kickoff_meeting", domain.SizeSmall, 1},
		{"requirements_gathering", domain.SizeSmall, 2},
		{"crm_setup", domain.SizeSmall, 3},
		{"sis_setup", domain.SizeSmall, 5},
		{"api_testing", domain.SizeSmall, 5},
		{"sis_testing", domain.SizeSmall, 7},
		{"security_review", domain.SizeMedium, 5},
		{"security_review", domain.SizeEnterprise, 7},
		{"user_training", domain.SizeSmall, 7},
		{"go_live_preparation", domain.SizeSmall, 30},
	}
	for _, tc := range cases {
		got := DueDateAt(fixedNow, tc.taskType, nil, tc.size)
		assert.Equal(t, today.AddDate(0, 0, tc.days), got, tc.taskType)
	}
}

func TestDueDateGoLiveBufferAndClamp(t *testing.T) {
	goLive := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	got := DueDateAt(fixedNow, "go_live_preparation", &goLive, domain.SizeSmall)
	assert.Equal(t, time.Date(2026, 5, 17, 0, 0, 0, 0, time.UTC), got)

	soon := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	got = DueDateAt(fixedNow, "go_live_preparation", &soon, domain.SizeSmall)
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), got)

	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got = DueDateAt(fixedNow, "go_live_preparation", &past, domain.SizeSmall)
	assert.True(t, got.After(fixedNow))
}

func TestDueDateAlwaysInFuture(t *testing.T) {
	for _, tt := range []string{"kickoff_meeting", "sis_setup", "security_review", "go_live", "x"} {
		for _, size := range []domain.CustomerSize{"", domain.SizeSmall, domain.SizeEnterprise} {
			assert.True(t, DueDateAt(fixedNow, tt, &fixedNow, size).After(fixedNow), tt)
		}
	}
}
