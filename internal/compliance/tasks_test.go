package compliance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certline/internal/domain"
)

func TestDeriveTasksExpiringIn15Days(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a")}
	snap.Certifications = []domain.Certification{cert("c1", "p1", "A.1", 15)}

	tasks, warnings := DeriveTasks(snap, refDate, labels)
	require.Empty(t, warnings)
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "task-p1-c1-30", task.ID)
	assert.Equal(t, domain.TaskReminder30, task.Type)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, 15, task.DaysLeft)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, "Operator", task.EmployeePosition)
	assert.Equal(t, "Workshop A", task.Department)
	assert.Equal(t, "Промышленная безопасность", task.Category)
	assert.Equal(t, "2024-05-17T00:00:00Z", task.CreatedAt)

	c, err := ClassifyDate(snap.Certifications[0].ExpiryDate, refDate)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpiringSoon, c.Status)
}

func TestDeriveTasksExpiredTenDaysAgo(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a")}
	snap.Certifications = []domain.Certification{cert("c1", "p1", "A.1", -10)}

	tasks, _ := DeriveTasks(snap, refDate, labels)
	require.Len(t, tasks, 1)
	assert.Equal(t, "task-p1-c1-expired", tasks[0].ID)
	assert.Equal(t, domain.TaskExpired, tasks[0].Type)
	assert.Equal(t, domain.PriorityCritical, tasks[0].Priority)
	assert.Equal(t, -10, tasks[0].DaysLeft)
	assert.Equal(t, "2024-05-23T00:00:00Z", tasks[0].CreatedAt)
}

func TestDeriveTasksBucketsAndOrdering(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{
		employee("p2", "pos-op", "dep-b"),
		employee("p1", "pos-op", "dep-a"),
	}
	snap.Certifications = []domain.Certification{
		cert("c5", "p2", "A.1", 120),
		cert("c4", "p2", "B.3", 75),
		cert("c3", "p1", "A.1", 45),
		cert("c2", "p2", "A.1", 20),
		cert("c1", "p1", "B.3", 20),
		cert("c0", "p1", "C.1", -1),
	}

	tasks, warnings := DeriveTasks(snap, refDate, nil)
	require.Empty(t, warnings)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{
		"task-p1-c0-expired",
		"task-p1-c1-30",
		"task-p2-c2-30",
		"task-p1-c3-60",
		"task-p2-c4-90",
	}, ids)
	assert.Equal(t, "industrial_safety", tasks[0].Category, "falls back to the category code")
}

func TestDeriveTasksExcludesNonEmployeesAndInactive(t *testing.T) {
	snap := baseSnapshot()
	contractor := employee("p2", "pos-op", "dep-a")
	contractor.PersonnelType = domain.PersonnelContractor
	inactive := employee("p3", "pos-op", "dep-a")
	inactive.Status = "inactive"
	otherTenant := employee("p4", "pos-op", "dep-a")
	otherTenant.TenantID = "t2"
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", ""), contractor, inactive, otherTenant}
	snap.Certifications = []domain.Certification{
		cert("c1", "p1", "A.1", 5),
		cert("c2", "p2", "A.1", 5),
		cert("c3", "p3", "A.1", 5),
		cert("c4", "p4", "A.1", 5),
		cert("c5", "ghost", "A.1", 5),
	}

	tasks, _ := DeriveTasks(snap, refDate, nil)
	require.Len(t, tasks, 1)
	assert.Equal(t, "p1", tasks[0].EmployeeID)
	assert.Equal(t, NoDepartment, tasks[0].Department)
}

func TestDeriveTasksSkipsInvalidDates(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a")}
	bad := cert("c1", "p1", "A.1", 0)
	bad.ExpiryDate = "someday"
	snap.Certifications = []domain.Certification{bad, cert("c2", "p1", "B.3", 3)}

	tasks, warnings := DeriveTasks(snap, refDate, nil)
	require.Len(t, tasks, 1)
	assert.Equal(t, "c2", tasks[0].CertificationID)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnInvalidDate, warnings[0].Code)
	assert.Equal(t, "c1", warnings[0].CertificationID)
}

func TestDeriveTasksAtMostOneTaskPerCertification(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a")}
	for d := -40; d <= 130; d++ {
		snap.Certifications = append(snap.Certifications, cert(dateIn(d), "p1", "A.1", d))
	}
	tasks, _ := DeriveTasks(snap, refDate, nil)

	perCert := map[string]int{}
	for _, task := range tasks {
		perCert[task.CertificationID]++
		b, ok := BucketFor(task.DaysLeft)
		require.True(t, ok)
		require.Equal(t, b.Type, task.Type)
	}
	for id, n := range perCert {
		require.Equal(t, 1, n, "certification %s", id)
	}
	assert.Len(t, tasks, 40+91, "days above 90 produce no task")
}

func TestDeriveTasksCreatedAtStableWithinBucket(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a")}
	snap.Certifications = []domain.Certification{cert("c1", "p1", "A.1", 25)}

	first, _ := DeriveTasks(snap, refDate, nil)
	later, _ := DeriveTasks(snap, refDate.AddDate(0, 0, 10), nil)
	require.Len(t, first, 1)
	require.Len(t, later, 1)
	assert.Equal(t, first[0].ID, later[0].ID)
	assert.Equal(t, first[0].CreatedAt, later[0].CreatedAt)
	assert.Equal(t, 15, later[0].DaysLeft)

	expired, _ := DeriveTasks(snap, refDate.AddDate(0, 0, 30), nil)
	require.Len(t, expired, 1)
	assert.NotEqual(t, first[0].ID, expired[0].ID, "crossing into another bucket changes the id")
}

func TestDeriveTasksIsDeterministic(t *testing.T) {
	snap := baseSnapshot()
	snap.Personnel = []domain.Personnel{employee("p1", "pos-op", "dep-a"), employee("p2", "pos-eng", "dep-b")}
	snap.Certifications = []domain.Certification{
		cert("c1", "p1", "A.1", 10), cert("c2", "p2", "A.1", 10), cert("c3", "p1", "B.3", -4),
	}
	a, _ := DeriveTasks(snap, refDate, labels)
	b, _ := DeriveTasks(snap, refDate, labels)
	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
}

func TestFilterAndCountTasks(t *testing.T) {
	tasks := []domain.Task{
		{ID: "1", Status: domain.TaskPending, Priority: domain.PriorityCritical, Type: domain.TaskExpired, Department: "A"},
		{ID: "2", Status: domain.TaskInProgress, Priority: domain.PriorityHigh, Type: domain.TaskReminder30, Department: "B"},
		{ID: "3", Status: domain.TaskCompleted, Priority: domain.PriorityLow, Type: domain.TaskReminder90, Department: NoDepartment},
		{ID: "4", Status: domain.TaskPending, Priority: domain.PriorityMedium, Type: domain.TaskReminder60, Department: "A"},
	}
	assert.Equal(t, domain.TaskStats{
		Total: 4, Pending: 2, InProgress: 1, Completed: 1,
		Critical: 1, High: 1, Medium: 1, Low: 1,
	}, CountTasks(tasks))

	got := FilterTasks(tasks, TaskFilter{Status: domain.TaskPending, Department: "A"})
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Len(t, FilterTasks(tasks, TaskFilter{Priority: domain.PriorityHigh}), 1)
	assert.Len(t, FilterTasks(tasks, TaskFilter{}), 4)
	assert.Equal(t, []string{"A", "B"}, TaskDepartments(tasks))
}
