package compliance

import (
	"sort"

	"certline/internal/domain"
)

// TaskFilter narrows a task list. Empty fields match everything.
type TaskFilter struct {
	Status     domain.TaskStatus
	Priority   domain.Priority
	Type       domain.TaskType
	Department string
}

func (f TaskFilter) matches(t domain.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Department != "" && t.Department != f.Department {
		return false
	}
	return true
}

// FilterTasks keeps tasks matching f, preserving order.
func FilterTasks(tasks []domain.Task, f TaskFilter) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// CountTasks tallies tasks by status and priority.
func CountTasks(tasks []domain.Task) domain.TaskStats {
	stats := domain.TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case domain.TaskPending:
			stats.Pending++
		case domain.TaskInProgress:
			stats.InProgress++
		case domain.TaskCompleted:
			stats.Completed++
		}
		switch t.Priority {
		case domain.PriorityCritical:
			stats.Critical++
		case domain.PriorityHigh:
			stats.High++
		case domain.PriorityMedium:
			stats.Medium++
		case domain.PriorityLow:
			stats.Low++
		}
	}
	return stats
}

// TaskDepartments lists the distinct named departments present in tasks.
func TaskDepartments(tasks []domain.Task) []string {
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		names = append(names, t.Department)
	}
	return distinctDepartments(names)
}

// FilterRecords keeps compliance records of the given department; empty keeps all.
func FilterRecords(records []domain.ComplianceRecord, department string) []domain.ComplianceRecord {
	if department == "" {
		return records
	}
	out := make([]domain.ComplianceRecord, 0, len(records))
	for _, r := range records {
		if r.Department == department {
			out = append(out, r)
		}
	}
	return out
}

// RecordDepartments lists the distinct named departments present in records.
func RecordDepartments(records []domain.ComplianceRecord) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Department)
	}
	return distinctDepartments(names)
}

func distinctDepartments(names []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0)
	for _, n := range names {
		if n == NoDepartment || n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
