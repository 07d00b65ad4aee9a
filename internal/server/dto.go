package server

import (
	"encoding/json"

	"certline/internal/domain"
	"certline/internal/engine"
)

type SetTaskStatusRequest struct {
	Status domain.TaskStatus `json:"status" enum:"pending,in_progress,completed"`
}

type BulkTaskStatusRequest struct {
	TaskIDs []string          `json:"task_ids" minItems:"1"`
	Status  domain.TaskStatus `json:"status" enum:"pending,in_progress,completed"`
}

type BulkTaskStatusResponse struct {
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []engine.BulkResult `json:"results"`
}

type VerificationRequest struct {
	Verified bool `json:"verified"`
}

type ImportRequest struct {
	Records []engine.ImportRecord `json:"records"`
	DryRun  bool                  `json:"dry_run,omitempty"`
}

type CollectResponse struct {
	Removed []string `json:"removed"`
}

type CertificationsResponse struct {
	Items []engine.CertificationView `json:"items"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	TenantID    string   `json:"tenant_id"`
	Source      string   `json:"source"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TTLMinutes  int      `json:"ttl_minutes,omitempty" minimum:"0"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func bulkResponse(results []engine.BulkResult) BulkTaskStatusResponse {
	res := BulkTaskStatusResponse{Results: nonNilSlice(results)}
	for _, r := range results {
		if r.OK {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		TenantID:   e.TenantID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
