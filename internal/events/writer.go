package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TaskStatusChanged       = "task.status.changed"
	TaskOverrideCollected   = "task.override.collected"
	CertificationVerified   = "certification.verified"
	CertificationUnverified = "certification.unverified"
	CertificationImported   = "certification.imported"
	TenantInit              = "tenant.init"
	SeedLoaded              = "seed.loaded"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Entry is one row to append.
type Entry struct {
	Type       string
	TenantID   string
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    EventPayload
}

// Append writes an event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if e.Payload == nil {
		e.Payload = EventPayload{}
	}
	if e.ActorID == "" {
		e.ActorID = "system"
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,tenant_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), e.Type, nullable(e.TenantID), e.EntityKind, nullable(e.EntityID), e.ActorID, string(data))
	return err
}

// AppendNow writes an event in its own transaction.
func (w Writer) AppendNow(ctx context.Context, e Entry) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
