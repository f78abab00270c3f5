package integration

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"onboardline/internal/domain"
)

const warningThreshold = 70

// Validator runs the type-specific test battery for an integration.
type Validator struct {
	Checker ConnectivityChecker
	Now     func() time.Time
}

func NewValidator(checker ConnectivityChecker) Validator {
	if checker == nil {
		checker = SimulatedChecker{}
	}
	return Validator{Checker: checker, Now: time.Now}
}

func (v Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v Validator) checker() ConnectivityChecker {
	if v.Checker != nil {
		return v.Checker
	}
	return SimulatedChecker{Now: v.Now}
}

// RunTests executes the battery for integ.Type and aggregates the verdict.
func (v Validator) RunTests(ctx context.Context, integ domain.Integration) domain.ValidationResult {
	cfg := integ.Configuration
	c := v.checker()
	var tests []domain.TestResult
	switch integ.Type {
	case domain.IntegrationSIS:
		tests = []domain.TestResult{
			c.CheckConnectivity(ctx, integ.Type, cfg),
			v.authTest("SIS authentication", cfg, [][]string{{"api_key"}, {"client_id", "client_secret"}}),
			c.CheckDataFlow(ctx, integ.Type, cfg),
			v.configTest("SIS configuration", cfg, "base_url"),
		}
	case domain.IntegrationCRM:
		tests = []domain.TestResult{
			c.CheckConnectivity(ctx, integ.Type, cfg),
			v.authTest("CRM authentication", cfg, [][]string{{"api_key"}, {"client_id", "client_secret"}, {"access_token"}}),
			c.CheckDataFlow(ctx, integ.Type, cfg),
		}
	case domain.IntegrationSFTP:
		tests = []domain.TestResult{
			v.configTest("SFTP configuration", cfg, "host"),
			c.CheckConnectivity(ctx, integ.Type, cfg),
			v.authTest("SFTP authentication", cfg, [][]string{{"username", "password"}, {"username", "private_key"}}),
			c.CheckDataFlow(ctx, integ.Type, cfg),
		}
	case domain.IntegrationAPI:
		tests = []domain.TestResult{
			c.CheckConnectivity(ctx, integ.Type, cfg),
			v.authTest("API authentication", cfg, [][]string{{"api_key"}, {"bearer_token"}}),
			c.CheckDataFlow(ctx, integ.Type, cfg),
		}
	default:
		tests = []domain.TestResult{
			v.nonEmptyConfigTest(cfg),
			c.CheckConnectivity(ctx, integ.Type, cfg),
		}
	}
	return Aggregate(integ.ID, tests, v.now())
}

// authTest passes when every key of at least one credential set is present.
func (v Validator) authTest(name string, cfg map[string]any, sets [][]string) domain.TestResult {
	res := domain.TestResult{Name: name, TestType: domain.TestAuthentication, RanAt: v.now()}
	for _, set := range sets {
		if hasAll(cfg, set) {
			res.Passed = true
			res.Message = "credentials present: " + strings.Join(set, ", ")
			return res
		}
	}
	alts := make([]string, 0, len(sets))
	for _, set := range sets {
		alts = append(alts, strings.Join(set, "+"))
	}
	res.Message = "missing credentials; provide one of " + strings.Join(alts, " or ")
	return res
}

func (v Validator) configTest(name string, cfg map[string]any, keys ...string) domain.TestResult {
	res := domain.TestResult{Name: name, TestType: domain.TestConfiguration, RanAt: v.now()}
	var missing []string
	for _, k := range keys {
		if !present(cfg, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		res.Message = "missing required configuration: " + strings.Join(missing, ", ")
		return res
	}
	res.Passed = true
	res.Message = "required configuration present"
	return res
}

func (v Validator) nonEmptyConfigTest(cfg map[string]any) domain.TestResult {
	res := domain.TestResult{Name: "configuration", TestType: domain.TestConfiguration, RanAt: v.now()}
	if len(cfg) == 0 {
		res.Message = "configuration is empty"
		return res
	}
	res.Passed = true
	res.Message = fmt.Sprintf("%d configuration key(s) present", len(cfg))
	return res
}

func hasAll(cfg map[string]any, keys []string) bool {
	for _, k := range keys {
		if !present(cfg, k) {
			return false
		}
	}
	return true
}

func present(cfg map[string]any, key string) bool {
	v, ok := cfg[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Percentage is round(100*passed/total), never reporting 100 while a test failed.
func Percentage(passed, total int) int {
	if total <= 0 {
		return 0
	}
	if passed >= total {
		return 100
	}
	p := int(math.Round(100 * float64(passed) / float64(total)))
	if p > 99 {
		p = 99
	}
	return p
}

// OverallStatus maps a completion percentage to a verdict.
func OverallStatus(pct int) domain.ValidationStatus {
	switch {
	case pct >= 100:
		return domain.ValidationPassed
	case pct >= warningThreshold:
		return domain.ValidationWarning
	}
	return domain.ValidationFailed
}

// Aggregate scores a set of test results.
func Aggregate(integrationID string, tests []domain.TestResult, at time.Time) domain.ValidationResult {
	passed := 0
	for _, t := range tests {
		if t.Passed {
			passed++
		}
	}
	pct := Percentage(passed, len(tests))
	status := OverallStatus(pct)
	return domain.ValidationResult{
		IntegrationID:        integrationID,
		Tests:                tests,
		OverallStatus:        status,
		CompletionPercentage: pct,
		NextSteps:            nextSteps(tests, status),
		TestedAt:             at,
	}
}

func nextSteps(tests []domain.TestResult, status domain.ValidationStatus) []string {
	steps := []string{}
	for _, t := range tests {
		if !t.Passed {
			steps = append(steps, fmt.Sprintf("Fix %s (%s): %s", t.Name, t.TestType, t.Message))
		}
	}
	switch status {
	case domain.ValidationPassed:
		steps = append(steps, "All tests passed; integration is ready for go-live")
	case domain.ValidationWarning:
		steps = append(steps, "Optimize the configuration and re-run validation")
	default:
		steps = append(steps, "Fix the failing tests and re-run validation")
	}
	return steps
}

// DetermineStatus is the only mapping from a validation verdict to an integration status.
func DetermineStatus(res domain.ValidationResult) domain.IntegrationStatus {
	switch res.OverallStatus {
	case domain.ValidationPassed:
		return domain.IntegrationActive
	case domain.ValidationWarning:
		return domain.IntegrationTesting
	}
	return domain.IntegrationFailed
}

// Apply records a fresh validation result on integ and reports whether its status changed.
func Apply(integ domain.Integration, res domain.ValidationResult) (domain.Integration, bool) {
	next := DetermineStatus(res)
	changed := integ.Status != next
	integ.Status = next
	integ.TestResults = &res
	return integ, changed
}
