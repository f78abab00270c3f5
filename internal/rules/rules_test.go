package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
)

func TestDefaultTablesValidate(t *testing.T) {
	tables := Default()
	require.NoError(t, tables.Validate())
	assert.NotEmpty(t, tables.Version)

	sis := tables.EscalationFor("sis_setup")
	assert.Equal(t, domain.PriorityCritical, sis.UrgencyLevel)
	assert.Equal(t, []domain.Role{domain.RoleTechnicalLead, domain.RoleProjectManager, domain.RoleOwner}, sis.EscalationChain)

	assert.Equal(t, []domain.Role{domain.RoleTechnicalLead, domain.RoleProjectManager}, tables.BlockerSuccessors(domain.RoleITContact))
	assert.Equal(t, []domain.Role{domain.RoleProjectManager}, tables.BlockerSuccessors(domain.RoleOwner))
}

func TestUnknownTaskTypeUsesDefaults(t *testing.T) {
	tables := Default()
	a := tables.AssignmentFor("vendor_paperwork")
	assert.Equal(t, "vendor_paperwork", a.TaskType)
	assert.Equal(t, domain.RoleProjectManager, a.FallbackRole)
	assert.Empty(t, a.PreferredRoles)

	e := tables.EscalationFor("vendor_paperwork")
	assert.Equal(t, 3, e.OverdueThresholdDays)
	assert.Equal(t, "vendor_paperwork", e.TaskType)
}

func TestFromYAMLRejectsBadRules(t *testing.T) {
	cases := map[string]string{
		"missing version": `
default_assignment: {fallback_role: project_manager}
default_escalation: {overdue_threshold_days: 3, escalation_chain: [owner], urgency_level: medium}
`,
		"unknown role": `
version: "x"
default_assignment: {fallback_role: cfo}
default_escalation: {overdue_threshold_days: 3, escalation_chain: [owner], urgency_level: medium}
`,
		"zero threshold": `
version: "x"
default_assignment: {fallback_role: owner}
default_escalation: {overdue_threshold_days: 0, escalation_chain: [owner], urgency_level: medium}
`,
		"too many blocker successors": `
version: "x"
default_assignment: {fallback_role: owner}
default_escalation: {overdue_threshold_days: 1, escalation_chain: [owner], urgency_level: low}
blocker_escalation:
  it_contact: [technical_lead, project_manager, owner]
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(body))
			require.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	body := `
version: "custom-1"
default_assignment: {fallback_role: owner}
default_escalation: {overdue_threshold_days: 4, escalation_chain: [owner], urgency_level: high}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	tables, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-1", tables.Version)
	assert.Equal(t, domain.RoleOwner, tables.AssignmentFor("anything").FallbackRole)

	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Version, def.Version)
}
