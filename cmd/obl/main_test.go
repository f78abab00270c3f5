package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"onboardline/internal/domain"
)

func TestParseStakeholderFlag(t *testing.T) {
	s, err := parseStakeholderFlag("it_contact:Ian Park:ian@lakeside.edu")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleITContact, s.Role)
	assert.Equal(t, "Ian Park", s.Name)
	assert.Equal(t, "ian@lakeside.edu", s.Email)

	_, err = parseStakeholderFlag("owner:Olga")
	require.Error(t, err)
}

func TestIntakeFileInput(t *testing.T) {
	raw := `
customer:
  name: Lakeside University
  size: large
go_live_date: 2026-06-01
stakeholders:
  - role: owner
    name: Olga
    email: olga@lakeside.edu
integrations:
  - name: Banner
    type: sis
    configuration:
      endpoint: https://banner.lakeside.edu
`
	var f intakeFile
	require.NoError(t, yaml.Unmarshal([]byte(raw), &f))
	in, err := f.input(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, domain.SizeLarge, in.Customer.Size)
	require.NotNil(t, in.GoLiveDate)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *in.GoLiveDate)
	require.Len(t, in.Stakeholders, 1)
	require.Len(t, in.Integrations, 1)
	assert.Equal(t, "https://banner.lakeside.edu", in.Integrations[0].Configuration["endpoint"])

	f.GoLiveDate = "soon"
	_, err = f.input(time.UTC)
	require.Error(t, err)
}

func TestAuditFlagsInclusiveEndDate(t *testing.T) {
	f := auditFlags{from: "2026-03-01", to: "2026-03-02", eventType: "task_escalated"}
	q, err := f.query(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTaskEscalated, q.EventType)
	require.NotNil(t, q.From)
	require.NotNil(t, q.To)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *q.From)
	assert.Equal(t, time.Date(2026, 3, 2, 23, 59, 59, 999999999, time.UTC), *q.To)

	f.to = "2026-03-02T12:00:00Z"
	q, err = f.query(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 12, q.To.Hour())
}
