package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	id "caminomanager/pkg/domain"
	audit "caminomanager/pkg/platform/audit"
)

const (
	table        = "audit_events"
	colID        = "id"
	colAction    = "action"
	colUserID    = "user_id"
	colSubject   = "subject"
	colEntity    = "entity"
	colRecordID  = "record_id"
	colIP        = "ip"
	colRequestID = "request_id"
	colOccurred  = "occurred_at"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements audit.Store on Postgres. Appends made inside a managed
// transaction commit or roll back with it.
type Store struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// New creates a PostgreSQL audit store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u.String()
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := event.ID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	sqlStr, args, err := psql.Insert(table).
		Columns(colID, colAction, colUserID, colSubject, colEntity, colRecordID, colIP, colRequestID, colOccurred).
		Values(
			eventID,
			string(event.Action),
			nullableUUID(uuid.UUID(event.UserID)),
			event.Subject,
			event.Entity,
			nullableUUID(uuid.UUID(event.RecordID)),
			event.IP,
			event.RequestID,
			event.Timestamp.UTC(),
		).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.getter.DefaultTrOrDB(ctx, s.pool).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlStr, args, err := psql.Select(
		colID, colAction,
		"COALESCE("+colUserID+"::text, '')",
		colSubject, colEntity,
		"COALESCE("+colRecordID+"::text, '')",
		colIP, colRequestID, colOccurred,
	).
		From(table).
		OrderBy(colOccurred + " DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.getter.DefaultTrOrDB(ctx, s.pool).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e                  audit.Event
			action             string
			rawUser, rawRecord string
		)
		if err := rows.Scan(&e.ID, &action, &rawUser, &e.Subject, &e.Entity, &rawRecord, &e.IP, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		if rawUser != "" {
			if u, err := id.ParseUserID(rawUser); err == nil {
				e.UserID = u
			}
		}
		if rawRecord != "" {
			if r, err := id.ParseRecordID(rawRecord); err == nil {
				e.RecordID = r
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
