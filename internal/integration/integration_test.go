package integration

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
)

var fixedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func newValidator() Validator {
	return Validator{Checker: SimulatedChecker{Now: func() time.Time { return fixedNow }}, Now: func() time.Time { return fixedNow }}
}

type failingChecker struct{}

func (failingChecker) CheckConnectivity(_ context.Context, _ domain.IntegrationType, _ map[string]any) domain.TestResult {
	return domain.TestResult{Name: "connectivity", TestType: domain.TestConnectivity, Message: "timeout"}
}

func (failingChecker) CheckDataFlow(_ context.Context, _ domain.IntegrationType, _ map[string]any) domain.TestResult {
	return domain.TestResult{Name: "data flow", TestType: domain.TestDataFlow, Message: "no data"}
}

func TestAPIWithoutCredentialsFailsAuthentication(t *testing.T) {
	v := newValidator()
	res := v.RunTests(context.Background(), domain.Integration{
		ID: "i1", Type: domain.IntegrationAPI, Configuration: map[string]any{"base_url": "https://api.example.edu"},
	})
	require.Len(t, res.Tests, 3)
	var auth domain.TestResult
	for _, tr := range res.Tests {
		if tr.TestType == domain.TestAuthentication {
			auth = tr
		}
	}
	assert.False(t, auth.Passed)
	assert.Less(t, res.CompletionPercentage, 100)
	assert.Equal(t, 67, res.CompletionPercentage)
	assert.Contains(t, []domain.ValidationStatus{domain.ValidationWarning, domain.ValidationFailed}, res.OverallStatus)
	assert.Equal(t, domain.ValidationFailed, res.OverallStatus)
	assert.Contains(t, res.NextSteps[0], "API authentication")
	assert.Equal(t, "Fix the failing tests and re-run validation", res.NextSteps[len(res.NextSteps)-1])
}

func TestAPIWithBearerTokenPasses(t *testing.T) {
	v := newValidator()
	res := v.RunTests(context.Background(), domain.Integration{
		ID: "i1", Type: domain.IntegrationAPI, Configuration: map[string]any{"bearer_token": "tok"},
	})
	assert.Equal(t, 100, res.CompletionPercentage)
	assert.Equal(t, domain.ValidationPassed, res.OverallStatus)
	assert.Equal(t, domain.IntegrationActive, DetermineStatus(res))
	assert.Len(t, res.NextSteps, 1)
}

func TestSISMissingBaseURLIsWarning(t *testing.T) {
	v := newValidator()
	res := v.RunTests(context.Background(), domain.Integration{
		ID: "i2", Type: domain.IntegrationSIS,
		Configuration: map[string]any{"client_id": "abc", "client_secret": "shh"},
	})
	assert.Equal(t, 75, res.CompletionPercentage)
	assert.Equal(t, domain.ValidationWarning, res.OverallStatus)
	assert.Equal(t, domain.IntegrationTesting, DetermineStatus(res))
}

func TestSFTPRequiresUserAndSecret(t *testing.T) {
	v := newValidator()
	res := v.RunTests(context.Background(), domain.Integration{
		ID: "i3", Type: domain.IntegrationSFTP,
		Configuration: map[string]any{"host": "sftp.example.edu", "username": "svc", "password": "  "},
	})
	assert.Equal(t, 75, res.CompletionPercentage)

	res = v.RunTests(context.Background(), domain.Integration{
		ID: "i3", Type: domain.IntegrationSFTP,
		Configuration: map[string]any{"host": "sftp.example.edu", "username": "svc", "private_key": "---"},
	})
	assert.Equal(t, domain.ValidationPassed, res.OverallStatus)
}

func TestOtherTypeAndInjectedChecker(t *testing.T) {
	v := Validator{Checker: failingChecker{}, Now: func() time.Time { return fixedNow }}
	res := v.RunTests(context.Background(), domain.Integration{ID: "i4", Type: domain.IntegrationOther})
	assert.Equal(t, 0, res.CompletionPercentage)
	assert.Equal(t, domain.ValidationFailed, res.OverallStatus)
	assert.Len(t, res.NextSteps, 3)
}

func TestPercentageConsistency(t *testing.T) {
	for total := 1; total <= 250; total++ {
		for passed := 0; passed <= total; passed++ {
			pct := Percentage(passed, total)
			if passed < total {
				want := int(math.Round(100 * float64(passed) / float64(total)))
				if want > 99 {
					want = 99
				}
				require.Equal(t, want, pct)
			}
			require.Equal(t, passed == total, OverallStatus(pct) == domain.ValidationPassed, "%d/%d", passed, total)
		}
	}
	assert.Equal(t, 0, Percentage(0, 0))
	assert.Equal(t, domain.ValidationFailed, Aggregate("x", nil, fixedNow).OverallStatus)
}

func TestDetermineStatusIdempotent(t *testing.T) {
	res := Aggregate("i1", []domain.TestResult{{Passed: true}, {Passed: true}}, fixedNow)
	integ := domain.Integration{ID: "i1", Status: domain.IntegrationConfigured}
	integ, changed := Apply(integ, res)
	assert.True(t, changed)
	assert.Equal(t, domain.IntegrationActive, integ.Status)
	integ, changed = Apply(integ, res)
	assert.False(t, changed)
	assert.Equal(t, domain.IntegrationActive, integ.Status)
	require.NotNil(t, integ.TestResults)
}

func TestCalculateProgress(t *testing.T) {
	ints := []domain.Integration{
		{Status: domain.IntegrationActive},
		{Status: domain.IntegrationActive},
		{Status: domain.IntegrationFailed},
		{Status: domain.IntegrationNotConfigured},
		{Status: domain.IntegrationTesting},
		{Status: "archived"},
	}
	p := CalculateProgress(ints)
	assert.Equal(t, 6, p.Total)
	assert.Equal(t, 2, p.Completed)
	assert.Equal(t, 33, p.Percentage)
	sum := 0
	for _, n := range p.StatusBreakdown {
		sum += n
	}
	assert.Equal(t, p.Total, sum)

	nearly := make([]domain.Integration, 200)
	for i := range nearly {
		nearly[i].Status = domain.IntegrationActive
	}
	nearly[0].Status = domain.IntegrationTesting
	p = CalculateProgress(nearly)
	assert.Equal(t, 199, p.Completed)
	assert.Equal(t, 100, p.Percentage)

	empty := CalculateProgress(nil)
	assert.Equal(t, 0, empty.Percentage)
	assert.Equal(t, 0, empty.Total)
}

func TestGenerateStatusReport(t *testing.T) {
	report := GenerateStatusReport([]domain.Integration{
		{Status: domain.IntegrationActive},
		{Status: domain.IntegrationFailed},
		{Status: domain.IntegrationNotConfigured},
		{Status: domain.IntegrationTesting},
	})
	assert.Contains(t, report, "1/4 active (25%)")
	assert.Contains(t, report, "Configure 1 integration(s)")
	assert.Contains(t, report, "Fix 1 failed integration(s)")
	assert.Contains(t, report, "Complete testing for 1 integration(s)")
	assert.NotContains(t, report, "proceed to go-live")

	done := GenerateStatusReport([]domain.Integration{{Status: domain.IntegrationActive}})
	assert.Contains(t, done, "1/1 active (100%)")
	assert.Contains(t, done, "proceed to go-live")
}

func TestInstructionsTotal(t *testing.T) {
	roles := append([]domain.Role{}, domain.Roles...)
	for _, typ := range append(domain.IntegrationTypes, "LDAP") {
		for _, role := range roles {
			set := Instructions(typ, role)
			require.NotEmpty(t, set.Steps, "%s/%s", typ, role)
			require.NotEmpty(t, set.Title)
			assert.Greater(t, set.EstimatedHours, 0.0)
			for i, s := range set.Steps {
				assert.Equal(t, i+1, s.Number)
			}
			if role == domain.RoleOwner {
				assert.LessOrEqual(t, set.EstimatedHours, 2.0)
			}
			if role.Technical() {
				assert.Greater(t, len(set.Steps), len(Instructions(typ, domain.RoleOwner).Steps))
			}
		}
	}
	assert.Equal(t, domain.IntegrationOther, Instructions("LDAP", domain.RoleOwner).IntegrationType)
	assert.True(t, strings.HasPrefix(Instructions(domain.IntegrationSIS, domain.RoleTechnicalLead).Steps[0].Title, "Review"))
}
