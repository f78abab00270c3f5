package integration

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"onboardline/internal/domain"
)

// Progress aggregates integration statuses for an onboarding.
type Progress struct {
	Total           int                              `json:"total"`
	Completed       int                              `json:"completed"`
	Percentage      int                              `json:"percentage"`
	StatusBreakdown map[domain.IntegrationStatus]int `json:"status_breakdown"`
}

// CalculateProgress counts integrations by status; completed means active.
func CalculateProgress(integrations []domain.Integration) Progress {
	p := Progress{Total: len(integrations), StatusBreakdown: map[domain.IntegrationStatus]int{}}
	for _, s := range domain.IntegrationStatuses {
		p.StatusBreakdown[s] = 0
	}
	for _, in := range integrations {
		p.StatusBreakdown[in.Status]++
		if in.Status == domain.IntegrationActive {
			p.Completed++
		}
	}
	if p.Total > 0 {
		p.Percentage = int(math.Round(100 * float64(p.Completed) / float64(p.Total)))
	}
	return p
}

// GenerateStatusReport renders a plain-text summary with recommendations.
func GenerateStatusReport(integrations []domain.Integration) string {
	p := CalculateProgress(integrations)
	var b strings.Builder
	fmt.Fprintf(&b, "Integration progress: %d/%d active (%d%%)\n", p.Completed, p.Total, p.Percentage)
	if p.Total == 0 {
		b.WriteString("No integrations are registered for this onboarding.\n")
		return b.String()
	}
	b.WriteString("\nStatus breakdown:\n")
	for _, s := range domain.IntegrationStatuses {
		fmt.Fprintf(&b, "  %-15s %d\n", s, p.StatusBreakdown[s])
	}
	var other []string
	for s, n := range p.StatusBreakdown {
		if !s.Valid() && n > 0 {
			other = append(other, string(s))
		}
	}
	sort.Strings(other)
	for _, s := range other {
		fmt.Fprintf(&b, "  %-15s %d\n", s, p.StatusBreakdown[domain.IntegrationStatus(s)])
	}

	var recs []string
	if n := p.StatusBreakdown[domain.IntegrationNotConfigured]; n > 0 {
		recs = append(recs, fmt.Sprintf("Configure %d integration(s) that are not yet configured", n))
	}
	if n := p.StatusBreakdown[domain.IntegrationFailed]; n > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d failed integration(s) and re-run validation", n))
	}
	if n := p.StatusBreakdown[domain.IntegrationTesting]; n > 0 {
		recs = append(recs, fmt.Sprintf("Complete testing for %d integration(s)", n))
	}
	if n := p.StatusBreakdown[domain.IntegrationConfigured]; n > 0 {
		recs = append(recs, fmt.Sprintf("Run validation tests for %d configured integration(s)", n))
	}
	if p.Completed == p.Total {
		recs = append(recs, "All integrations are active; proceed to go-live")
	}
	b.WriteString("\nRecommendations:\n")
	for _, r := range recs {
		b.WriteString("- " + r + "\n")
	}
	return b.String()
}
