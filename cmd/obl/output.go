package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"onboardline/internal/audit"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/escalation"
	"onboardline/internal/integration"
	"onboardline/internal/notify"
	"onboardline/internal/rules"
)

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	if viper.GetBool("no-color") {
		color.NoColor = true
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func urgencyText(u domain.Urgency) string {
	switch u {
	case domain.PriorityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(u)
	case domain.PriorityHigh:
		return color.RedString(string(u))
	case domain.PriorityMedium:
		return color.YellowString(string(u))
	default:
		return string(u)
	}
}

func statusText(s domain.TaskStatus) string {
	switch s {
	case domain.TaskCompleted:
		return color.GreenString(string(s))
	case domain.TaskBlocked:
		return color.RedString(string(s))
	case domain.TaskInProgress:
		return color.CyanString(string(s))
	default:
		return string(s)
	}
}

func integrationStatusText(s domain.IntegrationStatus) string {
	switch s {
	case domain.IntegrationActive:
		return color.GreenString(string(s))
	case domain.IntegrationFailed:
		return color.RedString(string(s))
	case domain.IntegrationTesting:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func dueText(t domain.Task, now time.Time) string {
	if t.DueDate == nil {
		return ""
	}
	day := t.DueDate.Format("2006-01-02")
	if t.Status != domain.TaskCompleted && t.DueDate.Before(now) {
		return color.RedString(day)
	}
	return day
}

func contactList(cs []domain.Contact) string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, fmt.Sprintf("%s <%s>", c.Name, c.Email))
	}
	return strings.Join(out, ", ")
}

func roleList(rs []domain.Role) string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, string(r))
	}
	return strings.Join(out, " > ")
}

func deliveryText(r *notify.Result) string {
	if r == nil {
		return ""
	}
	if r.Success {
		return color.GreenString("delivered")
	}
	return color.RedString("failed: " + r.Error)
}

func printTasks(tasks []domain.Task, now time.Time) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Type", "Owner", "Status", "Priority", "Due", "Blocker"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.TaskType, t.OwnerRole, statusText(t.Status), urgencyText(t.Priority), dueText(t, now), t.BlockerReason})
	}
	tw.Render()
}

func printOnboardings(items []domain.Onboarding) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Customer", "Status", "Go-live", "Created"})
	for _, o := range items {
		goLive := ""
		if o.GoLiveDate != nil {
			goLive = o.GoLiveDate.Format("2006-01-02")
		}
		tw.AppendRow(table.Row{o.ID, o.CustomerID, o.Status, goLive, o.CreatedAt.Format(time.RFC3339)})
	}
	tw.Render()
}

func printDetail(d engine.OnboardingDetail, now time.Time) {
	fmt.Printf("%s (%s) - %s\n", d.Customer.Name, d.Customer.Size, d.Onboarding.Status)
	if d.Onboarding.GoLiveDate != nil {
		fmt.Printf("Go-live: %s\n", d.Onboarding.GoLiveDate.Format("2006-01-02"))
	}
	st := newTable()
	st.SetTitle("Stakeholders")
	st.AppendHeader(table.Row{"ID", "Role", "Name", "Email"})
	for _, s := range d.Stakeholders {
		st.AppendRow(table.Row{s.ID, s.Role, s.Name, s.Email})
	}
	st.Render()
	printIntegrations(d.Integrations)
	printTasks(d.Tasks, now)
}

func printProgress(p engine.Progress) {
	tw := newTable()
	tw.SetTitle("Onboarding " + p.OnboardingID)
	tw.AppendRow(table.Row{"Status", p.Status})
	tw.AppendRow(table.Row{"Tasks", fmt.Sprintf("%d/%d (%d%%)", p.CompletedTasks, p.TotalTasks, p.Percentage)})
	tw.AppendRow(table.Row{"Overdue", p.OverdueTasks})
	tw.AppendRow(table.Row{"Blockers", len(p.Blockers)})
	tw.AppendRow(table.Row{"Integrations", fmt.Sprintf("%d/%d active (%d%%)", p.Integrations.Completed, p.Integrations.Total, p.Integrations.Percentage)})
	if p.DaysToGoLive != nil {
		tw.AppendRow(table.Row{"Days to go-live", *p.DaysToGoLive})
	}
	tw.Render()
	for _, b := range p.Blockers {
		fmt.Printf("%s %s: %s\n", color.RedString("blocked"), b.TaskType, b.BlockerReason)
	}
}

func printIntegrations(items []domain.Integration) {
	tw := newTable()
	tw.SetTitle("Integrations")
	tw.AppendHeader(table.Row{"ID", "Name", "Type", "Status", "Tested"})
	for _, i := range items {
		tested := ""
		if i.TestResults != nil {
			tested = fmt.Sprintf("%s %d%%", i.TestResults.OverallStatus, i.TestResults.CompletionPercentage)
		}
		tw.AppendRow(table.Row{i.ID, i.Name, i.Type, integrationStatusText(i.Status), tested})
	}
	tw.Render()
}

func printValidation(out engine.TestOutcome) {
	v := out.Validation
	tw := newTable()
	tw.SetTitle(fmt.Sprintf("%s: %s (%d%%)", out.Integration.Name, v.OverallStatus, v.CompletionPercentage))
	tw.AppendHeader(table.Row{"Test", "Type", "Result", "Message"})
	for _, t := range v.Tests {
		res := color.GreenString("pass")
		if !t.Passed {
			res = color.RedString("fail")
		}
		tw.AppendRow(table.Row{t.Name, t.TestType, res, t.Message})
	}
	tw.Render()
	for _, step := range v.NextSteps {
		fmt.Println("- " + step)
	}
	if out.StatusChanged {
		fmt.Printf("Integration is now %s\n", integrationStatusText(out.Integration.Status))
	}
}

func printInstructions(set integration.InstructionSet) {
	fmt.Printf("%s (about %.1f hours)\n", set.Title, set.EstimatedHours)
	for _, s := range set.Steps {
		fmt.Printf("%d. %s\n   %s\n", s.Number, s.Title, s.Description)
	}
	for _, group := range []struct {
		name  string
		items []string
	}{
		{"Technical", set.RequiredResources.Technical},
		{"Access", set.RequiredResources.Access},
		{"Information", set.RequiredResources.Information},
	} {
		if len(group.items) > 0 {
			fmt.Printf("%s: %s\n", group.name, strings.Join(group.items, ", "))
		}
	}
}

func printCandidates(items []escalation.Candidate) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Task", "Type", "Days overdue", "Tier", "Escalate to", "Urgency"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.Task.ID, c.Task.TaskType, c.Result.DaysOverdue, c.Result.Tier, roleList(c.Result.EscalateTo), urgencyText(c.Result.UrgencyLevel)})
	}
	tw.Render()
}

func printEscalationReport(r engine.EscalationReport) {
	fmt.Printf("Evaluated %d, escalated %d, already escalated today %d, notification failures %d\n",
		r.Evaluated, r.Escalated, r.Duplicates, r.NotificationFailures)
	if len(r.Items) == 0 {
		return
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Task", "Type", "Outcome", "Urgency", "Recipients", "Delivery"})
	for _, it := range r.Items {
		delivery := deliveryText(it.Notification)
		if it.Error != "" && delivery == "" {
			delivery = color.RedString(it.Error)
		}
		tw.AppendRow(table.Row{it.TaskID, it.TaskType, it.Outcome, urgencyText(it.Result.UrgencyLevel), strings.Join(it.Recipients, ", "), delivery})
	}
	tw.Render()
}

func printAuditRecords(recs []domain.AuditRecord) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Time", "Event", "Entity", "Source", "Trigger"})
	for _, r := range recs {
		trigger, _ := r.Metadata[audit.KeyTrigger].(string)
		tw.AppendRow(table.Row{r.CreatedAt.Format(time.RFC3339), r.EventType, string(r.EntityType) + "/" + r.EntityID, r.Source(), trigger})
	}
	tw.Render()
}

func printAuditSummary(s audit.Summary) {
	fmt.Printf("Total events: %d", s.TotalEvents)
	if s.Truncated {
		fmt.Print(color.YellowString(" (truncated)"))
	}
	fmt.Println()
	if s.DateRange != nil {
		fmt.Printf("Range: %s to %s\n", s.DateRange.Earliest.Format(time.RFC3339), s.DateRange.Latest.Format(time.RFC3339))
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Event", "Count"})
	events := make([]string, 0, len(s.EventsByType))
	for evt := range s.EventsByType {
		events = append(events, string(evt))
	}
	slices.Sort(events)
	for _, evt := range events {
		tw.AppendRow(table.Row{evt, s.EventsByType[domain.EventType(evt)]})
	}
	tw.Render()
	at := newTable()
	at.SetTitle("Most active")
	at.AppendHeader(table.Row{"Entity", "Count"})
	for _, a := range s.MostActiveEntities {
		at.AppendRow(table.Row{string(a.EntityType) + "/" + a.EntityID, a.Count})
	}
	at.Render()
}

func printRules(t *rules.Tables) {
	fmt.Printf("Rules version %s\n", t.Version)
	at := newTable()
	at.SetTitle("Assignment")
	at.AppendHeader(table.Row{"Task type", "Preferred roles", "Fallback"})
	for _, r := range t.Assignment {
		at.AppendRow(table.Row{r.TaskType, roleList(r.PreferredRoles), r.FallbackRole})
	}
	at.AppendRow(table.Row{"(default)", roleList(t.DefaultAssignment.PreferredRoles), t.DefaultAssignment.FallbackRole})
	at.Render()
	et := newTable()
	et.SetTitle("Escalation")
	et.AppendHeader(table.Row{"Task type", "Threshold days", "Chain", "Urgency"})
	for _, r := range append(slices.Clone(t.Escalation), t.DefaultEscalation) {
		name := r.TaskType
		if name == "" {
			name = "(default)"
		}
		et.AppendRow(table.Row{name, r.OverdueThresholdDays, roleList(r.EscalationChain), urgencyText(r.UrgencyLevel)})
	}
	et.Render()
	bt := newTable()
	bt.SetTitle("Blocker escalation")
	bt.AppendHeader(table.Row{"Owner", "Escalates to"})
	owners := make([]string, 0, len(t.BlockerEscalation))
	for r := range t.BlockerEscalation {
		owners = append(owners, string(r))
	}
	slices.Sort(owners)
	for _, o := range owners {
		bt.AppendRow(table.Row{o, roleList(t.BlockerEscalation[domain.Role(o)])})
	}
	bt.Render()
}
