package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/archive"
	"onboardline/internal/audit"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/migrate"
	"onboardline/internal/notify"
	"onboardline/internal/repo"
)

type sent struct {
	n  notify.Notification
	ch notify.Channel
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail bool
}

func (f *fakeNotifier) Send(_ context.Context, n notify.Notification, ch notify.Channel) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{n: n, ch: ch})
	if f.fail {
		return notify.Result{Error: "channel down"}
	}
	return notify.Result{Success: true, NotificationID: "n-" + string(n.Type)}
}

func (f *fakeNotifier) ofType(t notify.Type) []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Notification
	for _, s := range f.sent {
		if s.n.Type == t {
			out = append(out, s.n)
		}
	}
	return out
}

type testEnv struct {
	Engine   *engine.Engine
	Notifier *fakeNotifier
	Ctx      context.Context
	clock    time.Time
}

func (env *testEnv) setClock(t time.Time) { env.clock = t }

var start = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))

	cfg := config.Default()
	cfg.Escalation.Timezone = "UTC"
	fake := &fakeNotifier{}
	env := &testEnv{Notifier: fake, Ctx: context.Background(), clock: start}
	env.Engine = engine.New(conn, cfg, engine.Options{Notifier: fake})
	env.Engine.Now = func() time.Time { return env.clock }
	return env
}

func intake() engine.OnboardingInput {
	goLive := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	return engine.OnboardingInput{
		Customer:   engine.CustomerInput{Name: "Lakeside University", Size: domain.SizeLarge},
		GoLiveDate: &goLive,
		Stakeholders: []engine.StakeholderInput{
			{Role: domain.RoleProjectManager, Name: "Pat", Email: "pat@lakeside.edu"},
			{Role: domain.RoleTechnicalLead, Name: "Tess", Email: "tess@lakeside.edu"},
			{Role: domain.RoleITContact, Name: "Ian", Email: "ian@lakeside.edu"},
			{Role: domain.RoleOwner, Name: "Olga", Email: "olga@lakeside.edu"},
		},
		Integrations: []engine.IntegrationInput{{Name: "Banner", Type: "sis"}},
		Origin:       engine.Origin{Source: engine.SourceAPI, Trigger: "test"},
	}
}

func taskByType(t *testing.T, tasks []domain.Task, typ string) domain.Task {
	t.Helper()
	for _, task := range tasks {
		if task.TaskType == typ {
			return task
		}
	}
	t.Fatalf("no %s task", typ)
	return domain.Task{}
}

func stakeholderByRole(t *testing.T, ss []domain.Stakeholder, role domain.Role) domain.Stakeholder {
	t.Helper()
	for _, s := range ss {
		if s.Role == role {
			return s
		}
	}
	t.Fatalf("no %s stakeholder", role)
	return domain.Stakeholder{}
}

func TestCreateOnboardingBuildsInitialTasks(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)

	var types []string
	for _, task := range detail.Tasks {
		types = append(types, task.TaskType)
		assert.Equal(t, domain.TaskPending, task.Status)
		require.NotNil(t, task.DueDate)
		assert.True(t, task.DueDate.After(start))
	}
	assert.Equal(t, []string{
		"kickoff_meeting", "requirements_gathering", "sis_setup", "sis_testing",
		"security_review", "user_training", "go_live_preparation",
	}, types)

	setup := taskByType(t, detail.Tasks, "sis_setup")
	ian := stakeholderByRole(t, detail.Stakeholders, domain.RoleITContact)
	assert.Equal(t, domain.RoleITContact, setup.OwnerRole)
	require.NotNil(t, setup.AssignedTo)
	assert.Equal(t, ian.ID, *setup.AssignedTo)
	assert.Equal(t, domain.PriorityCritical, setup.Priority)
	assert.Equal(t, "2026-03-07", setup.DueDate.Format("2006-01-02"))

	golive := taskByType(t, detail.Tasks, "go_live_preparation")
	assert.Equal(t, "2026-05-29", golive.DueDate.Format("2006-01-02"))

	got, err := env.Engine.GetOnboarding(env.Ctx, detail.Onboarding.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lakeside University", got.Customer.Name)
	assert.Len(t, got.Tasks, 7)
	require.Len(t, got.Stakeholders, 4)
	assert.Equal(t, domain.RoleProjectManager, got.Stakeholders[0].Role)

	recs, err := env.Engine.QueryAudit(env.Ctx, audit.Query{OnboardingID: detail.Onboarding.ID})
	require.NoError(t, err)
	assert.Len(t, recs, 1+1+4+1+7)
	for _, r := range recs {
		assert.Equal(t, engine.SourceAPI, r.Source())
	}
}

func TestCreateOnboardingRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]func(in *engine.OnboardingInput){
		"name": func(in *engine.OnboardingInput) { in.Customer.Name = " " },
		"past go-live": func(in *engine.OnboardingInput) {
			past := start.AddDate(0, 0, -1)
			in.GoLiveDate = &past
		},
		"email":       func(in *engine.OnboardingInput) { in.Stakeholders[0].Email = "pat" },
		"role":        func(in *engine.OnboardingInput) { in.Stakeholders[1].Role = "janitor" },
		"integration": func(in *engine.OnboardingInput) { in.Integrations[0].Type = "fax" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := intake()
			mutate(&in)
			_, err := env.Engine.CreateOnboarding(env.Ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), err)
		})
	}
	list, err := env.Engine.ListOnboardings(env.Ctx, repo.OnboardingFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	task := taskByType(t, detail.Tasks, "kickoff_meeting")
	o := engine.Origin{Source: engine.SourceCLI}

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskInProgress, false, o)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, task.Status)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskBlocked, false, o)
	require.Error(t, err, "blocking requires a reason")

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskCompleted, false, o)
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(start))

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskPending, false, o)
	require.ErrorIs(t, err, domain.ErrValidation)

	task, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskPending, true, o)
	require.NoError(t, err)
	assert.Nil(t, task.CompletedAt)

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, "missing", domain.TaskCompleted, false, o)
	require.ErrorIs(t, err, domain.ErrNotFound)

	recs, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EntityID: task.ID, EventType: domain.EventTaskStatusChanged})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, true, recs[0].Metadata["forced"])
}

func TestBlockerEscalatesOncePerDay(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	setup := taskByType(t, detail.Tasks, "sis_setup")

	out, err := env.Engine.SetBlocker(env.Ctx, setup.ID, "waiting on vendor credentials", engine.Origin{Source: engine.SourceAPI})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskBlocked, out.Task.Status)
	assert.True(t, out.Task.IsBlocker)
	assert.False(t, out.Duplicate)
	assert.Equal(t, []domain.Role{domain.RoleTechnicalLead, domain.RoleProjectManager}, out.Escalation.Roles)
	assert.Equal(t, domain.PriorityCritical, out.Escalation.UrgencyLevel)
	require.NotNil(t, out.Notification)
	assert.True(t, out.Notification.Success)

	notes := env.Notifier.ofType(notify.BlockerCreated)
	require.Len(t, notes, 1)
	assert.Equal(t, []string{"tess@lakeside.edu", "pat@lakeside.edu"}, notes[0].Emails())

	again, err := env.Engine.SetBlocker(env.Ctx, setup.ID, "still waiting", engine.Origin{})
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Nil(t, again.Notification)
	assert.Len(t, env.Notifier.ofType(notify.BlockerCreated), 1)

	resolved, err := env.Engine.ResolveBlocker(env.Ctx, setup.ID, engine.ResolveBlockerInput{Resolution: "credentials issued"})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskInProgress, resolved.Task.Status)
	assert.False(t, resolved.Task.IsBlocker)
	assert.Empty(t, resolved.Task.BlockerReason)
	assert.Len(t, env.Notifier.ofType(notify.BlockerResolved), 1)

	env.setClock(start.AddDate(0, 0, 1))
	next, err := env.Engine.SetBlocker(env.Ctx, setup.ID, "firewall change pending", engine.Origin{})
	require.NoError(t, err)
	assert.False(t, next.Duplicate)
	assert.Len(t, env.Notifier.ofType(notify.BlockerCreated), 2)

	_, err = env.Engine.SetBlocker(env.Ctx, setup.ID, " ", engine.Origin{})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestEscalationRun(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)

	env.setClock(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC))
	candidates, err := env.Engine.CheckEscalations(env.Ctx, detail.Onboarding.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Empty(t, env.Notifier.sent, "check is a dry run")

	report, err := env.Engine.RunEscalationCheck(env.Ctx, detail.Onboarding.ID, engine.Origin{Source: engine.SourceCLI})
	require.NoError(t, err)
	assert.Equal(t, 7, report.Evaluated)
	assert.Equal(t, 3, report.Escalated)
	assert.Zero(t, report.Duplicates)
	assert.Zero(t, report.NotificationFailures)

	byType := map[string]engine.EscalationItem{}
	for _, item := range report.Items {
		byType[item.TaskType] = item
		assert.Equal(t, engine.OutcomeEscalated, item.Outcome)
	}
	kickoff := byType["kickoff_meeting"]
	assert.Equal(t, 6, kickoff.Result.DaysOverdue)
	assert.Equal(t, 1, kickoff.Result.Tier)
	assert.Equal(t, []string{"pat@lakeside.edu", "olga@lakeside.edu"}, kickoff.Recipients)
	setup := byType["sis_setup"]
	assert.Equal(t, 0, setup.Result.Tier)
	assert.Equal(t, []string{"tess@lakeside.edu"}, setup.Recipients)
	assert.Equal(t, domain.PriorityCritical, setup.Result.UrgencyLevel)
	assert.Len(t, env.Notifier.ofType(notify.TaskEscalated), 3)

	again, err := env.Engine.RunEscalationCheck(env.Ctx, detail.Onboarding.ID, engine.Origin{})
	require.NoError(t, err)
	assert.Zero(t, again.Escalated)
	assert.Equal(t, 3, again.Duplicates)
	assert.Len(t, env.Notifier.ofType(notify.TaskEscalated), 3)

	recs, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EventType: domain.EventTaskEscalated})
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	runs, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EventType: domain.EventEscalationRunCompleted})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	env.setClock(time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC))
	env.Notifier.fail = true
	third, err := env.Engine.RunEscalationCheck(env.Ctx, "", engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, 3, third.Escalated)
	assert.Equal(t, 3, third.NotificationFailures)
	failed, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EventType: domain.EventNotificationFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 3)
}

func TestSendRemindersDedupsPerDay(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)

	report, err := env.Engine.SendReminders(env.Ctx, detail.Onboarding.ID, 0, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 2, report.Sent)
	reminders := env.Notifier.ofType(notify.TaskReminder)
	require.Len(t, reminders, 2)
	assert.Equal(t, []string{"pat@lakeside.edu"}, reminders[0].Emails())

	again, err := env.Engine.SendReminders(env.Ctx, detail.Onboarding.ID, 2, engine.Origin{})
	require.NoError(t, err)
	assert.Zero(t, again.Sent)
	assert.Equal(t, 2, again.Skipped)
	assert.Len(t, env.Notifier.ofType(notify.TaskReminder), 2)
}

func TestIntegrationConfigureAndTest(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	integ := detail.Integrations[0]
	assert.Equal(t, domain.IntegrationNotConfigured, integ.Status)

	integ, err = env.Engine.ConfigureIntegration(env.Ctx, integ.ID, map[string]any{"base_url": "https://sis.lakeside.edu"}, false, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, domain.IntegrationConfigured, integ.Status)

	out, err := env.Engine.TestIntegration(env.Ctx, integ.ID, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationWarning, out.Validation.OverallStatus)
	assert.Equal(t, 75, out.Validation.CompletionPercentage)
	assert.Equal(t, domain.IntegrationTesting, out.Integration.Status)

	integ, err = env.Engine.ConfigureIntegration(env.Ctx, integ.ID, map[string]any{"api_key": "k"}, true, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, "https://sis.lakeside.edu", integ.Configuration["base_url"])
	assert.Equal(t, domain.IntegrationTesting, integ.Status)

	out, err = env.Engine.TestIntegration(env.Ctx, integ.ID, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationPassed, out.Validation.OverallStatus)
	assert.Equal(t, 100, out.Validation.CompletionPercentage)
	assert.Equal(t, domain.IntegrationActive, out.Integration.Status)
	require.NotNil(t, out.Integration.TestResults)

	progress, err := env.Engine.IntegrationProgress(env.Ctx, detail.Onboarding.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 100, progress.Percentage)

	recs, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EntityID: integ.ID, EventType: domain.EventIntegrationConfigured})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []any{"api_key"}, recs[0].Metadata["keys"])
	assert.Equal(t, engine.SourceSystem, recs[0].Source())
	tested, err := env.Engine.QueryAudit(env.Ctx, audit.Query{EntityID: integ.ID, EventType: domain.EventIntegrationTested})
	require.NoError(t, err)
	require.Len(t, tested, 2)
	assert.Equal(t, engine.SourceValidator, tested[0].Source())
}

func TestOnboardingProgress(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	kickoff := taskByType(t, detail.Tasks, "kickoff_meeting")
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, kickoff.ID, domain.TaskCompleted, false, engine.Origin{})
	require.NoError(t, err)
	_, err = env.Engine.SetBlocker(env.Ctx, taskByType(t, detail.Tasks, "sis_setup").ID, "vendor", engine.Origin{})
	require.NoError(t, err)

	env.setClock(time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC))
	p, err := env.Engine.OnboardingProgress(env.Ctx, detail.Onboarding.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, p.TotalTasks)
	assert.Equal(t, 1, p.CompletedTasks)
	assert.Equal(t, 14, p.Percentage)
	assert.Equal(t, 1, p.TasksByStatus[domain.TaskBlocked])
	assert.Equal(t, 1, p.OverdueTasks)
	require.Len(t, p.Blockers, 1)
	require.NotNil(t, p.DaysToGoLive)
	assert.Equal(t, 88, *p.DaysToGoLive)
}

func TestReassignTask(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	setup := taskByType(t, detail.Tasks, "sis_setup")
	tess := stakeholderByRole(t, detail.Stakeholders, domain.RoleTechnicalLead)

	task, err := env.Engine.ReassignTask(env.Ctx, setup.ID, tess.ID, engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTechnicalLead, task.OwnerRole)
	assert.Equal(t, tess.ID, *task.AssignedTo)

	task, err = env.Engine.ReassignTask(env.Ctx, setup.ID, "", engine.Origin{})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleITContact, task.OwnerRole)

	_, err = env.Engine.ReassignTask(env.Ctx, setup.ID, "nobody", engine.Origin{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

type brokenStore struct{ audit.Store }

func (brokenStore) InsertAuditRecords(context.Context, []domain.AuditRecord) error {
	return errors.New("disk full")
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)

	env.Engine.Ledger.Store = brokenStore{Store: env.Engine.Ledger.Store}
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskInput{OnboardingID: detail.Onboarding.ID, TaskType: "data_migration"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleProjectManager, task.OwnerRole)
	assert.Equal(t, "data migration", task.Title)

	stored, err := env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)
}

func TestExportAudit(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)

	store, err := archive.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	out, err := env.Engine.ExportAudit(env.Ctx, store, audit.Query{OnboardingID: detail.Onboarding.ID, Filter: `event_type = "task_created"`})
	require.NoError(t, err)
	assert.Equal(t, 7, out.Records)

	paths, err := store.List(env.Ctx, "audit/2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, []string{out.Path}, paths)
}

func TestAuditTrails(t *testing.T) {
	env := newTestEnv(t)
	detail, err := env.Engine.CreateOnboarding(env.Ctx, intake())
	require.NoError(t, err)
	setup := taskByType(t, detail.Tasks, "sis_setup")

	scoped, err := env.Engine.OnboardingAuditTrail(env.Ctx, detail.Onboarding.ID, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, scoped)
	for _, r := range scoped {
		assert.Equal(t, detail.Onboarding.ID, r.OnboardingID)
	}
	_, err = env.Engine.OnboardingAuditTrail(env.Ctx, "missing", 0, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	trail, err := env.Engine.EntityAuditTrail(env.Ctx, domain.EntityTask, setup.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.EventTaskCreated, trail[0].EventType)

	all, err := env.Engine.QueryAudit(env.Ctx, audit.Query{Limit: audit.MaxLimit})
	require.NoError(t, err)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ranged, err := env.Engine.AuditInRange(env.Ctx, day, day.AddDate(0, 0, 1).Add(-time.Nanosecond), audit.MaxLimit, 0)
	require.NoError(t, err)
	assert.Len(t, ranged, len(all))

	before, err := env.Engine.AuditInRange(env.Ctx, day.AddDate(0, 0, -1), day.Add(-time.Nanosecond), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, before)

	_, err = env.Engine.AuditInRange(env.Ctx, day, day.AddDate(0, 0, -1), 10, 0)
	require.ErrorIs(t, err, domain.ErrValidation)
}
