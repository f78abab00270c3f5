package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"onboardline/internal/archive"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/metrics"
	"onboardline/internal/migrate"
	onboardlinesdk "onboardline/sdk/go"
)

type testServer struct {
	URL    string
	Engine *engine.Engine
	client *http.Client
	clock  time.Time
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Escalation.Timezone = "UTC"
	rec := metrics.New()
	e := engine.New(conn, cfg, engine.Options{Metrics: rec})
	store, err := archive.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	testSrv := &testServer{Engine: e, client: &http.Client{}, clock: testStart}
	e.Now = func() time.Time { return testSrv.clock }

	handler, err := New(Config{Engine: e, Metrics: rec, Archive: store})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv.URL = "http://" + ln.Addr().String()
	testSrv.close = func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %T: %v: %s", out, err, string(data))
	}
	return out
}

func onboardingBody() map[string]any {
	return map[string]any{
		"customer":     map[string]any{"name": "Lakeside University", "size": "large"},
		"go_live_date": "2026-06-01",
		"stakeholders": []map[string]any{
			{"role": "project_manager", "name": "Pat", "email": "pat@lakeside.edu"},
			{"role": "technical_lead", "name": "Tess", "email": "tess@lakeside.edu"},
			{"role": "it_contact", "name": "Ian", "email": "ian@lakeside.edu"},
			{"role": "owner", "name": "Olga", "email": "olga@lakeside.edu"},
		},
		"integrations": []map[string]any{{"name": "Banner", "type": "sis"}},
	}
}

func createOnboarding(t *testing.T, srv *testServer) engine.OnboardingDetail {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/onboardings", onboardingBody(), nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create onboarding status %d: %s", res.StatusCode, string(data))
	}
	return decode[engine.OnboardingDetail](t, data)
}

func findTask(t *testing.T, tasks []domain.Task, typ string) domain.Task {
	t.Helper()
	for _, task := range tasks {
		if task.TaskType == typ {
			return task
		}
	}
	t.Fatalf("no %s task", typ)
	return domain.Task{}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	health := decode[HealthResponse](t, data)
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if health.Status != "ok" || health.SchemaVersion != latest {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestCreateOnboardingAndFetch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	detail := createOnboarding(t, srv)
	if len(detail.Tasks) != 7 {
		t.Fatalf("expected 7 initial tasks, got %d", len(detail.Tasks))
	}
	if detail.Onboarding.GoLiveDate == nil || detail.Onboarding.GoLiveDate.Format("2006-01-02") != "2026-06-01" {
		t.Fatalf("go-live date not kept: %v", detail.Onboarding.GoLiveDate)
	}
	setup := findTask(t, detail.Tasks, "sis_setup")
	if setup.Priority != domain.PriorityCritical || setup.OwnerRole != domain.RoleITContact {
		t.Fatalf("unexpected sis_setup %+v", setup)
	}

	id := detail.Onboarding.ID
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/onboardings/"+id, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get onboarding status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/onboardings/"+id+"/tasks?status=pending&owner_role=it_contact", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks status %d: %s", res.StatusCode, string(data))
	}
	list := decode[TaskList](t, data)
	for _, task := range list.Items {
		if task.OwnerRole != domain.RoleITContact {
			t.Fatalf("owner_role filter leaked %s", task.OwnerRole)
		}
	}
	if len(list.Items) == 0 {
		t.Fatalf("expected it_contact tasks")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/onboardings/"+id+"/progress", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("progress status %d: %s", res.StatusCode, string(data))
	}
	progress := decode[engine.Progress](t, data)
	if progress.TotalTasks != 7 || progress.Percentage != 0 {
		t.Fatalf("unexpected progress %+v", progress)
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	body := onboardingBody()
	body["go_live_date"] = "next tuesday"
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/onboardings", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
	env := decode[apiError](t, data)
	if env.Body.Code != "bad_request" || env.Body.Details["field"] != "go_live_date" {
		t.Fatalf("unexpected envelope %s", string(data))
	}

	body = onboardingBody()
	body["stakeholders"] = []map[string]any{{"role": "owner", "name": "Olga", "email": "not-an-email"}}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/onboardings", body, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad email, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	env = decode[apiError](t, data)
	if env.Body.Code != "not_found" {
		t.Fatalf("unexpected code %q", env.Body.Code)
	}
}

func TestBlockerFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	detail := createOnboarding(t, srv)
	setup := findTask(t, detail.Tasks, "sis_setup")
	url := srv.URL + "/v1/tasks/" + setup.ID

	res, data := doJSON(t, srv.Client(), http.MethodPost, url+"/blocker", map[string]any{"reason": "VPN access pending"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set blocker status %d: %s", res.StatusCode, string(data))
	}
	out := decode[engine.BlockerOutcome](t, data)
	if !out.Task.IsBlocker || out.Task.Status != domain.TaskBlocked || out.Duplicate {
		t.Fatalf("unexpected blocker outcome %+v", out)
	}
	if out.Notification == nil || !out.Notification.Success {
		t.Fatalf("expected a delivered notification, got %+v", out.Notification)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, url+"/blocker", map[string]any{"reason": "still waiting"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second blocker status %d: %s", res.StatusCode, string(data))
	}
	if again := decode[engine.BlockerOutcome](t, data); !again.Duplicate {
		t.Fatalf("second escalation on the same day should be a duplicate")
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, url+"/blocker/resolve", map[string]any{"resolution": "VPN granted"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve status %d: %s", res.StatusCode, string(data))
	}
	resolved := decode[engine.ResolveBlockerOutcome](t, data)
	if resolved.Task.IsBlocker || resolved.Task.Status != domain.TaskInProgress {
		t.Fatalf("unexpected resolved task %+v", resolved.Task)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/audit/entities/task/"+setup.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("entity trail status %d: %s", res.StatusCode, string(data))
	}
	trail := decode[AuditRecordList](t, data)
	seen := map[domain.EventType]bool{}
	for _, rec := range trail.Items {
		seen[rec.EventType] = true
	}
	for _, evt := range []domain.EventType{domain.EventTaskCreated, domain.EventBlockerCreated, domain.EventTaskEscalated, domain.EventBlockerResolved} {
		if !seen[evt] {
			t.Fatalf("missing %s in trail", evt)
		}
	}
}

func TestEscalationRunIsIdempotentPerDay(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	detail := createOnboarding(t, srv)
	srv.clock = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/escalations/check?onboarding_id="+detail.Onboarding.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("check status %d: %s", res.StatusCode, string(data))
	}
	candidates := decode[CandidateList](t, data)
	if len(candidates.Items) == 0 {
		t.Fatalf("expected overdue candidates")
	}

	run := func() engine.EscalationReport {
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/escalations/run", map[string]any{"onboarding_id": detail.Onboarding.ID}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("run status %d: %s", res.StatusCode, string(data))
		}
		return decode[engine.EscalationReport](t, data)
	}
	first := run()
	if first.Escalated != len(candidates.Items) {
		t.Fatalf("escalated %d, want %d", first.Escalated, len(candidates.Items))
	}
	second := run()
	if second.Escalated != 0 || second.Duplicates != first.Escalated {
		t.Fatalf("second run should only see duplicates: %+v", second)
	}
}

func TestAuditQueryAndExport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	detail := createOnboarding(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit?event_type=task_created&limit=3", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit status %d: %s", res.StatusCode, string(data))
	}
	page := decode[AuditRecordList](t, data)
	if len(page.Items) != 3 || page.Limit != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
	for _, rec := range page.Items {
		if rec.EventType != domain.EventTaskCreated {
			t.Fatalf("filter leaked %s", rec.EventType)
		}
	}

	filter := `event_type = "integration_created"`
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/onboardings/"+detail.Onboarding.ID+"/audit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("onboarding audit status %d: %s", res.StatusCode, string(data))
	}
	scoped := decode[AuditRecordList](t, data)
	if len(scoped.Items) == 0 {
		t.Fatalf("onboarding audit trail is empty")
	}
	for _, rec := range scoped.Items {
		if rec.OnboardingID != detail.Onboarding.ID {
			t.Fatalf("record %s belongs to %q", rec.ID, rec.OnboardingID)
		}
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/onboardings/missing/audit", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown onboarding, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit/range?from=2026-03-02&to=2026-03-02&limit=1000", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("range status %d: %s", res.StatusCode, string(data))
	}
	if ranged := decode[AuditRecordList](t, data); len(ranged.Items) < len(scoped.Items) {
		t.Fatalf("range returned %d records, onboarding trail has %d", len(ranged.Items), len(scoped.Items))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit/range?from=2026-03-01&to=2026-03-01", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("range status %d: %s", res.StatusCode, string(data))
	}
	if ranged := decode[AuditRecordList](t, data); len(ranged.Items) != 0 {
		t.Fatalf("expected no records the day before, got %d", len(ranged.Items))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit/range?from=2026-03-03&to=2026-03-01", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit?limit=5000", nil, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit/summary?to=2026-03-02", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary status %d: %s", res.StatusCode, string(data))
	}
	if sum := decode[map[string]any](t, data); sum["total_events"].(float64) == 0 {
		t.Fatalf("same-day records should fall inside a bare to date: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/audit/export", map[string]any{"filter": filter}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("export status %d: %s", res.StatusCode, string(data))
	}
	exp := decode[map[string]any](t, data)
	if exp["records"].(float64) != 1 || !strings.Contains(exp["path"].(string), "2026-03-02") {
		t.Fatalf("unexpected export %s", string(data))
	}
}

func TestOpenAPIAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	createOnboarding(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	doc := decode[map[string]any](t, data)
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v1/onboardings", "/v1/tasks/{task_id}/blocker", "/v1/escalations/run", "/v1/audit"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}

	components, _ := doc["components"].(map[string]any)
	schemas, _ := components["schemas"].(map[string]any)
	for _, name := range []string{"EngineProgress", "IntegrationProgress", "EscalationResult", "NotifyResult", "Task"} {
		if _, ok := schemas[name]; !ok {
			t.Fatalf("openapi missing schema %s", name)
		}
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "onboardline_audit_writes_total") {
		t.Fatalf("metrics missing audit counter")
	}
}

func TestSDKRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := onboardlinesdk.New(srv.URL)
	ctx := context.Background()

	detail, err := client.CreateOnboarding(ctx, onboardlinesdk.CreateOnboardingInput{
		CustomerName: "Harbor College",
		CustomerSize: "small",
		GoLiveDate:   "2026-05-01",
		Stakeholders: []onboardlinesdk.Stakeholder{
			{Role: "owner", Name: "Olga", Email: "olga@harbor.edu"},
			{Role: "it_contact", Name: "Ian", Email: "ian@harbor.edu"},
			{Role: "technical_lead", Name: "Tess", Email: "tess@harbor.edu"},
			{Role: "project_manager", Name: "Pat", Email: "pat@harbor.edu"},
		},
		Integrations: []onboardlinesdk.Integration{{Name: "Salesforce", Type: "crm"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	tasks, err := client.Tasks(ctx, detail.Onboarding.ID, true)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(tasks) != len(detail.Tasks) {
		t.Fatalf("open tasks %d, want %d", len(tasks), len(detail.Tasks))
	}
	var setup onboardlinesdk.Task
	for _, task := range tasks {
		if task.TaskType == "crm_setup" {
			setup = task
		}
	}
	if setup.ID == "" {
		t.Fatalf("no crm_setup task in %+v", tasks)
	}
	out, err := client.SetBlocker(ctx, setup.ID, "API credentials missing")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if !out.Task.IsBlocker || out.Notification == nil || !out.Notification.Success {
		t.Fatalf("unexpected blocker outcome %+v", out)
	}
	recs, err := client.Audit(ctx, onboardlinesdk.AuditQuery{EntityType: "task", EntityID: setup.ID, EventType: "task_escalated"})
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one escalation record, got %d", len(recs))
	}

	_, err = client.UpdateTaskStatus(ctx, setup.ID, "done", false)
	var apiErr *onboardlinesdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}
