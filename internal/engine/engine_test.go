package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"certline/internal/compliance"
	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/engine/auth"
	"certline/internal/events"
	"certline/internal/overrides"
	"certline/internal/repo"
)

const (
	taskP1Reminder = "task-p1-cert-p1-a1-30"
	taskP2Expired  = "task-p2-cert-p2-a1-expired"
	taskP2Reminder = "task-p2-cert-p2-b3-60"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Dir    string
	now    *time.Time
}

func (env testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func seedData() engine.SeedData {
	return engine.SeedData{
		Departments: []domain.Department{{ID: "dep-a", Name: "Workshop A"}},
		Positions:   []domain.Position{{ID: "pos-op", Name: "Operator"}},
		Personnel: []domain.Personnel{
			{ID: "p1", FullName: "Ivanov I.I.", PositionID: "pos-op", DepartmentID: "dep-a"},
			{ID: "p2", FullName: "Petrov P.P.", PositionID: "pos-op", DepartmentID: "dep-a"},
			{ID: "x1", FullName: "Contractor", PositionID: "pos-op", PersonnelType: domain.PersonnelContractor},
		},
		Templates: []domain.CompetencyTemplate{{PositionID: "pos-op", RequiredAreas: []domain.AreaRequirement{
			{Category: domain.CategoryIndustrialSafety, Areas: []string{"A.1", "B.3"}},
		}}},
		Certifications: []domain.Certification{
			{ID: "cert-p1-a1", PersonID: "p1", Category: domain.CategoryIndustrialSafety, Area: "A.1", IssueDate: "2019-06-16", ExpiryDate: "2024-06-16"},
			{ID: "cert-p1-b3", PersonID: "p1", Category: domain.CategoryIndustrialSafety, Area: "B.3", IssueDate: "2020-06-01", ExpiryDate: "2025-06-01"},
			{ID: "cert-p2-a1", PersonID: "p2", Category: domain.CategoryIndustrialSafety, Area: "A.1", IssueDate: "2019-05-22", ExpiryDate: "2024-05-22"},
			{ID: "cert-p2-b3", PersonID: "p2", Category: domain.CategoryIndustrialSafety, Area: "B.3", IssueDate: "2019-07-16", ExpiryDate: "2024-07-16"},
			{ID: "cert-x1-a1", PersonID: "x1", Category: domain.CategoryIndustrialSafety, Area: "A.1", IssueDate: "2019-06-10", ExpiryDate: "2024-06-10"},
		},
	}
}

func newEngine(t *testing.T, dir string, now *time.Time) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return engine.New(conn, config.Default("t1"), engine.WithClock(func() time.Time { return *now }))
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	eng := newEngine(t, dir, &now)
	ctx := context.Background()
	if _, err := eng.InitTenant(ctx, "t1", "Test plant", "tester"); err != nil {
		t.Fatalf("init tenant: %v", err)
	}
	if _, err := eng.Seed(ctx, seedData(), "tester"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Dir: dir, now: &now}
}

func taskIDs(tasks []domain.Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	return ids
}

func TestTasksDerivedFromStoredData(t *testing.T) {
	env := newTestEnv(t)
	list, err := env.Engine.Tasks(env.Ctx, compliance.TaskFilter{})
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	got := taskIDs(list.Tasks)
	want := []string{taskP2Expired, taskP1Reminder, taskP2Reminder}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if list.Stats.Total != 3 || list.Stats.Critical != 1 || list.Stats.High != 1 || list.Stats.Medium != 1 || list.Stats.Pending != 3 {
		t.Fatalf("unexpected stats %+v", list.Stats)
	}
	if list.Tasks[1].Category != "Промышленная безопасность" || list.Tasks[1].Department != "Workshop A" {
		t.Fatalf("unexpected labels %+v", list.Tasks[1])
	}

	filtered, err := env.Engine.Tasks(env.Ctx, compliance.TaskFilter{Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatalf("filtered tasks: %v", err)
	}
	if len(filtered.Tasks) != 1 || filtered.Stats.Total != 3 {
		t.Fatalf("filter should narrow tasks but not stats: %d tasks, stats %+v", len(filtered.Tasks), filtered.Stats)
	}
}

func TestSetTaskStatusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskCompleted, "tester"); !errors.Is(err, overrides.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	task, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskInProgress, "tester")
	if err != nil || task.Status != domain.TaskInProgress {
		t.Fatalf("to in_progress: %v %+v", err, task)
	}
	task, err = env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskCompleted, "tester")
	if err != nil || task.CompletedAt == nil {
		t.Fatalf("to completed: %v %+v", err, task)
	}
	if *task.CompletedAt != "2024-06-01T10:00:00Z" {
		t.Fatalf("unexpected completed_at %s", *task.CompletedAt)
	}
	task, err = env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskPending, "tester")
	if err != nil || task.Status != domain.TaskPending || task.CompletedAt != nil {
		t.Fatalf("revert: %v %+v", err, task)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilter{TenantID: "t1", Type: events.TaskStatusChanged})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 3 {
		t.Fatalf("expected 3 transition events, got %d", len(evts))
	}
}

func TestBulkStatusReportsStaleIDs(t *testing.T) {
	env := newTestEnv(t)
	ids := []string{taskP1Reminder, taskP2Expired, taskP2Reminder}
	if _, err := env.Engine.BulkSetTaskStatus(env.Ctx, ids, domain.TaskInProgress, "tester"); err != nil {
		t.Fatalf("bulk in_progress: %v", err)
	}
	results, err := env.Engine.BulkSetTaskStatus(env.Ctx, append(ids, "task-p9-gone-30"), domain.TaskCompleted, "tester")
	if err != nil {
		t.Fatalf("bulk completed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results[:3] {
		if !r.OK || r.Task == nil || r.Task.Status != domain.TaskCompleted {
			t.Fatalf("expected %s completed, got %+v", r.TaskID, r)
		}
	}
	if results[3].OK || results[3].Code != "stale_reference" {
		t.Fatalf("expected stale_reference, got %+v", results[3])
	}
	list, err := env.Engine.Tasks(env.Ctx, compliance.TaskFilter{})
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if list.Stats.Completed != 3 {
		t.Fatalf("expected 3 completed, got %+v", list.Stats)
	}
}

func TestOverridesSurviveRestart(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetTaskStatus(env.Ctx, taskP2Expired, domain.TaskInProgress, "tester"); err != nil {
		t.Fatalf("set status: %v", err)
	}

	restarted := newEngine(t, env.Dir, env.now)
	if err := restarted.Hydrate(env.Ctx); err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	task, err := restarted.Task(env.Ctx, taskP2Expired)
	if err != nil {
		t.Fatalf("task: %v", err)
	}
	if task.Status != domain.TaskInProgress {
		t.Fatalf("expected in_progress after restart, got %s", task.Status)
	}
}

func TestBucketChangeMakesOverrideStale(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskInProgress, "tester"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	env.advance(20 * 24 * time.Hour)

	task, err := env.Engine.Task(env.Ctx, "task-p1-cert-p1-a1-expired")
	if err != nil {
		t.Fatalf("expired task: %v", err)
	}
	if task.Status != domain.TaskPending {
		t.Fatalf("new bucket must start pending, got %s", task.Status)
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskCompleted, "tester"); !errors.Is(err, overrides.ErrStaleReference) {
		t.Fatalf("expected stale reference, got %v", err)
	}
	removed, err := env.Engine.CollectStaleOverrides(env.Ctx, "tester")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(removed) != 1 || removed[0] != taskP1Reminder {
		t.Fatalf("expected %s collected, got %v", taskP1Reminder, removed)
	}
	stored, err := env.Engine.Repo.ListOverrides(env.Ctx, "t1")
	if err != nil {
		t.Fatalf("list overrides: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("expected persisted override deleted, got %+v", stored)
	}
}

func TestComplianceReport(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.Engine.Compliance(env.Ctx, "")
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	if len(report.Records) != 2 {
		t.Fatalf("contractors are excluded; got %d records", len(report.Records))
	}
	p1 := report.Records[0]
	if p1.PersonID != "p1" || p1.CompliancePercent != 50 || len(p1.ExpiringAreas) != 1 || p1.ExpiringAreas[0] != "A.1" {
		t.Fatalf("unexpected p1 record %+v", p1)
	}
	p2 := report.Records[1]
	if p2.CompliancePercent != 50 || len(p2.MissingAreas) != 1 || p2.MissingAreas[0] != "A.1" {
		t.Fatalf("unexpected p2 record %+v", p2)
	}
	if report.Stats.TotalEmployees != 2 || report.Stats.PartialCompliance != 2 || report.Stats.AvgCompliance != 50 {
		t.Fatalf("unexpected stats %+v", report.Stats)
	}
	if len(report.Departments) != 1 || report.Departments[0] != "Workshop A" {
		t.Fatalf("unexpected departments %v", report.Departments)
	}

	if _, err := env.Engine.PersonCompliance(env.Ctx, "x1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for contractor, got %v", err)
	}
	empty, err := env.Engine.Compliance(env.Ctx, "Workshop Z")
	if err != nil {
		t.Fatalf("filtered compliance: %v", err)
	}
	if len(empty.Records) != 0 || empty.Stats.TotalEmployees != 0 {
		t.Fatalf("expected empty report, got %+v", empty)
	}
}

func TestReportsCarryDataQualityWarnings(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Seed(env.Ctx, engine.SeedData{
		Positions: []domain.Position{{ID: "pos-eng", Name: "Engineer"}},
		Personnel: []domain.Personnel{{ID: "p3", FullName: "Sidorov S.S.", PositionID: "pos-eng", DepartmentID: "dep-a"}},
		Certifications: []domain.Certification{
			{ID: "cert-p1-bad", PersonID: "p1", Category: domain.CategoryEcology, Area: "E.1", IssueDate: "2020-01-01", ExpiryDate: "31.12.2025"},
		},
	}, "tester"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	list, err := env.Engine.Tasks(env.Ctx, compliance.TaskFilter{Priority: domain.PriorityCritical})
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if len(list.Warnings) != 1 || list.Warnings[0].Code != compliance.WarnInvalidDate || list.Warnings[0].CertificationID != "cert-p1-bad" {
		t.Fatalf("expected invalid_date warning for cert-p1-bad, got %+v", list.Warnings)
	}

	report, err := env.Engine.Compliance(env.Ctx, "")
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	codes := map[string]string{}
	for _, w := range report.Warnings {
		codes[w.Code] = w.PersonID
	}
	if len(report.Warnings) != 2 || codes[compliance.WarnInvalidDate] != "p1" || codes[compliance.WarnMissingTemplate] != "p3" {
		t.Fatalf("unexpected compliance warnings %+v", report.Warnings)
	}

	clean := newTestEnv(t)
	list, err = clean.Engine.Tasks(clean.Ctx, compliance.TaskFilter{})
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	if list.Warnings == nil || len(list.Warnings) != 0 {
		t.Fatalf("expected empty warning list, got %#v", list.Warnings)
	}
}

func TestImportCertifications(t *testing.T) {
	env := newTestEnv(t)
	records := []engine.ImportRecord{
		{PersonnelID: "p2", Category: "industrial_safety", Area: "A.1", IssueDate: "2024-05-30", ExpiryDate: "2029-05-30", ProtocolNumber: "17-П"},
		{PersonnelID: "p1", Category: "energy_safety", Area: "E.2", IssueDate: "2024-05-30", ExpiryDate: "2023-05-30"},
		{PersonnelID: "ghost", Category: "industrial_safety", Area: "A.1", IssueDate: "2024-05-30", ExpiryDate: "2029-05-30"},
		{PersonnelID: "p1", Category: "industrial_safety", Area: "A.1", IssueDate: "2024-05-30", ExpiryDate: "30.05.2029"},
	}

	dry, err := env.Engine.ImportCertifications(env.Ctx, records, true, "tester")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.Valid != 1 || dry.Warnings != 1 || dry.Errors != 2 || dry.Imported != 0 {
		t.Fatalf("unexpected dry-run report %+v", dry)
	}
	if dry.Rows[0].CertificationID != "" {
		t.Fatalf("dry run must not assign ids")
	}

	report, err := env.Engine.ImportCertifications(env.Ctx, records, false, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.Imported != 2 {
		t.Fatalf("expected 2 imported, got %+v", report)
	}
	if report.Rows[2].Status != engine.RowError || report.Rows[1].Status != engine.RowWarning {
		t.Fatalf("unexpected row statuses %+v", report.Rows)
	}

	// the renewal covers p2's expired A.1
	rec, err := env.Engine.PersonCompliance(env.Ctx, "p2")
	if err != nil {
		t.Fatalf("person compliance: %v", err)
	}
	if rec.CompliancePercent != 100 {
		t.Fatalf("expected p2 fully compliant after import, got %+v", rec)
	}
}

func TestCertificationVerification(t *testing.T) {
	env := newTestEnv(t)
	cert, err := env.Engine.SetCertificationVerified(env.Ctx, "cert-p1-b3", true, "tester")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !cert.Verified || cert.VerifiedDate != "2024-06-01" {
		t.Fatalf("unexpected verified cert %+v", cert)
	}
	cert, err = env.Engine.SetCertificationVerified(env.Ctx, "cert-p1-b3", false, "tester")
	if err != nil {
		t.Fatalf("unverify: %v", err)
	}
	if cert.Verified || cert.VerifiedDate != "" {
		t.Fatalf("unexpected unverified cert %+v", cert)
	}
	if _, err := env.Engine.SetCertificationVerified(env.Ctx, "missing", true, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	views, err := env.Engine.Certifications(env.Ctx, "p1")
	if err != nil {
		t.Fatalf("certifications: %v", err)
	}
	if len(views) != 2 || views[0].Status != domain.StatusExpiringSoon || *views[0].DaysLeft != 15 {
		t.Fatalf("unexpected views %+v", views)
	}
}

func TestWritesRequirePermission(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.GrantRole(env.Ctx, "auditor", auth.RoleViewer, "tester"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskInProgress, "auditor")
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Permission != auth.PermTasksUpdate {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if engine.ErrorCode(err) != "forbidden" {
		t.Fatalf("unexpected code %s", engine.ErrorCode(err))
	}
	if _, err := env.Engine.SetTaskStatus(env.Ctx, taskP1Reminder, domain.TaskInProgress, ""); !errors.Is(err, engine.ErrActorRequired) {
		t.Fatalf("expected actor required, got %v", err)
	}
	if err := env.Engine.GrantRole(env.Ctx, "auditor", "root", "tester"); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestLoadImportFile(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.yaml")
	wrapped := filepath.Join(dir, "wrapped.json")
	if err := os.WriteFile(list, []byte("- personnel_id: p1\n  category: ecology\n  area: Э.1\n  issue_date: 2024-01-10\n  expiry_date: 2029-01-10\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if err := os.WriteFile(wrapped, []byte(`{"records":[{"personnel_id":"p2","area":"A.1"},{"personnel_id":"p3"}]}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	recs, err := engine.LoadImportFile(list)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if len(recs) != 1 || recs[0].Area != "Э.1" || recs[0].ExpiryDate != "2029-01-10" {
		t.Fatalf("unexpected yaml records %+v", recs)
	}
	recs, err = engine.LoadImportFile(wrapped)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if len(recs) != 2 || recs[0].PersonnelID != "p2" {
		t.Fatalf("unexpected json records %+v", recs)
	}
	scalar := filepath.Join(dir, "scalar.yaml")
	if err := os.WriteFile(scalar, []byte("nope\n"), 0o644); err != nil {
		t.Fatalf("write scalar: %v", err)
	}
	if _, err := engine.LoadImportFile(scalar); err == nil {
		t.Fatalf("expected error for scalar document")
	}
}
