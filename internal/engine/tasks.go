package engine

import (
	"context"
	"errors"
	"fmt"

	"certline/internal/compliance"
	"certline/internal/domain"
	"certline/internal/engine/auth"
	"certline/internal/events"
	"certline/internal/overrides"
)

// TaskList is the merged task view with statistics over every live task.
// Warnings lists certifications skipped by the derivation.
type TaskList struct {
	Tasks       []domain.Task        `json:"tasks"`
	Stats       domain.TaskStats     `json:"stats"`
	Departments []string             `json:"departments"`
	Warnings    []compliance.Warning `json:"warnings"`
}

// Tasks returns live tasks with overrides applied, narrowed by f.
func (e Engine) Tasks(ctx context.Context, f compliance.TaskFilter) (TaskList, error) {
	derived, warnings, err := e.derive(ctx)
	if err != nil {
		return TaskList{}, err
	}
	merged := e.Overrides.Apply(derived)
	if warnings == nil {
		warnings = []compliance.Warning{}
	}
	return TaskList{
		Tasks:       compliance.FilterTasks(merged, f),
		Stats:       compliance.CountTasks(merged),
		Departments: compliance.TaskDepartments(merged),
		Warnings:    warnings,
	}, nil
}

// Task resolves a single live task.
func (e Engine) Task(ctx context.Context, taskID string) (domain.Task, error) {
	derived, _, err := e.derive(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	return findTask(e.Overrides.Apply(derived), taskID)
}

func findTask(tasks []domain.Task, id string) (domain.Task, error) {
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, fmt.Errorf("%w: task %s", overrides.ErrStaleReference, id)
}

// SetTaskStatus moves one live task along its lifecycle.
func (e Engine) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus, actorID string) (domain.Task, error) {
	if err := e.requireActor(ctx, actorID, auth.PermTasksUpdate); err != nil {
		return domain.Task{}, err
	}
	derived, _, err := e.derive(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	from := e.Overrides.Current(taskID)
	o, err := e.Overrides.SetStatus(ctx, overrides.NewLiveSet(derived), taskID, status)
	e.Metrics.IncTransition(transitionResult(err))
	if err != nil {
		return domain.Task{}, err
	}
	e.recordTransition(ctx, actorID, from, o)
	return findTask(e.Overrides.Apply(derived), taskID)
}

// BulkResult is the outcome of one id of a bulk status change.
type BulkResult struct {
	TaskID  string       `json:"task_id"`
	OK      bool         `json:"ok"`
	Task    *domain.Task `json:"task,omitempty"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// BulkSetTaskStatus applies status to every id independently against one derivation.
func (e Engine) BulkSetTaskStatus(ctx context.Context, taskIDs []string, status domain.TaskStatus, actorID string) ([]BulkResult, error) {
	if err := e.requireActor(ctx, actorID, auth.PermTasksUpdate); err != nil {
		return nil, err
	}
	derived, _, err := e.derive(ctx)
	if err != nil {
		return nil, err
	}
	live := overrides.NewLiveSet(derived)
	from := make(map[string]domain.TaskStatus, len(taskIDs))
	for _, id := range taskIDs {
		from[id] = e.Overrides.Current(id)
	}
	results := e.Overrides.BulkSetStatus(ctx, live, taskIDs, status)
	merged := e.Overrides.Apply(derived)
	out := make([]BulkResult, 0, len(results))
	for _, r := range results {
		e.Metrics.IncTransition(transitionResult(r.Err))
		if r.Err != nil {
			out = append(out, BulkResult{TaskID: r.TaskID, Code: ErrorCode(r.Err), Message: r.Err.Error()})
			continue
		}
		e.recordTransition(ctx, actorID, from[r.TaskID], *r.Override)
		res := BulkResult{TaskID: r.TaskID, OK: true}
		if t, err := findTask(merged, r.TaskID); err == nil {
			res.Task = &t
		}
		out = append(out, res)
	}
	return out, nil
}

// recordTransition appends the audit event. The override is already stored,
// so a failed append is logged and not returned.
func (e Engine) recordTransition(ctx context.Context, actorID string, from domain.TaskStatus, o domain.Override) {
	e.Logger.Info("task status changed", "tenant_id", e.TenantID(), "task_id", o.TaskID,
		"from", string(from), "to", string(o.Status), "actor_id", actorID)
	payload := events.EventPayload{"from": from, "to": o.Status}
	if o.CompletedAt != nil {
		payload["completed_at"] = *o.CompletedAt
	}
	if err := e.Events.AppendNow(ctx, events.Entry{
		Type: events.TaskStatusChanged, TenantID: e.TenantID(), EntityKind: "task", EntityID: o.TaskID,
		ActorID: actorID, Payload: payload,
	}); err != nil {
		e.Logger.Warn("append task event", "task_id", o.TaskID, "error", err)
	}
}

// CollectStaleOverrides drops overrides whose task is no longer derived.
func (e Engine) CollectStaleOverrides(ctx context.Context, actorID string) ([]string, error) {
	if err := e.requireActor(ctx, actorID, auth.PermOverridesCollect); err != nil {
		return nil, err
	}
	derived, _, err := e.derive(ctx)
	if err != nil {
		return nil, err
	}
	removed, err := e.Overrides.Collect(ctx, overrides.NewLiveSet(derived))
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []string{}
	}
	for _, id := range removed {
		if err := e.Events.AppendNow(ctx, events.Entry{
			Type: events.TaskOverrideCollected, TenantID: e.TenantID(), EntityKind: "task", EntityID: id, ActorID: actorID,
		}); err != nil {
			e.Logger.Warn("append collect event", "task_id", id, "error", err)
		}
	}
	e.Logger.Info("stale overrides collected", "tenant_id", e.TenantID(), "count", len(removed))
	return removed, nil
}

func transitionResult(err error) string {
	if err == nil {
		return "ok"
	}
	return ErrorCode(err)
}

// ErrorCode maps engine errors to stable machine-readable codes.
func ErrorCode(err error) string {
	var forbidden auth.ForbiddenError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, overrides.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, overrides.ErrStaleReference):
		return "stale_reference"
	case errors.Is(err, compliance.ErrInvalidDate):
		return "invalid_date"
	case errors.As(err, &forbidden):
		return "forbidden"
	case errors.Is(err, ErrActorRequired):
		return "unauthorized"
	case isNotFound(err):
		return "not_found"
	}
	return "internal"
}
