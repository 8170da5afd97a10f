package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caminomanager/internal/entity"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

const (
	table        = "entity_records"
	colID        = "id"
	colEntity    = "entity"
	colData      = "data"
	colSearch    = "search"
	colCreatedAt = "created_at"
	colUpdatedAt = "updated_at"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresStore keeps every entity in one JSONB table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

func (s *PostgresStore) conn(ctx context.Context) trmpgx.Tr {
	return s.getter.DefaultTrOrDB(ctx, s.pool)
}

func (s *PostgresStore) Insert(ctx context.Context, rec *entity.Record) error {
	sqlStr, args, err := psql.Insert(table).
		Columns(colID, colEntity, colData, colSearch, colCreatedAt, colUpdatedAt).
		Values(rec.ID.String(), rec.Entity, rec.Data, rec.Search, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *entity.Record) error {
	sqlStr, args, err := psql.Update(table).
		Set(colData, rec.Data).
		Set(colSearch, rec.Search).
		Set(colUpdatedAt, rec.UpdatedAt.UTC()).
		Where(sq.Eq{colID: rec.ID.String(), colEntity: rec.Entity}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string, recordID id.RecordID) error {
	sqlStr, args, err := psql.Delete(table).
		Where(sq.Eq{colID: recordID.String(), colEntity: name}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name string, recordID id.RecordID) (*entity.Record, error) {
	sqlStr, args, err := selectRecords().
		Where(sq.Eq{colID: recordID.String(), colEntity: name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rec, err := scanRecord(s.conn(ctx).QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", recordID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context, q entity.ListQuery) ([]*entity.Record, int, error) {
	where := sq.And{sq.Eq{colEntity: q.Entity}}
	if q.Search != "" {
		where = append(where, sq.Like{colSearch: "%" + likeEscaper.Replace(q.Search) + "%"})
	}

	countSQL, countArgs, err := psql.Select("count(*)").From(table).Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	query := selectRecords().Where(where)
	if q.SortBy != "" {
		query = query.OrderBy(orderExpr(q))
	}
	query = query.OrderBy(colCreatedAt, colID).Offset(uint64(max(q.Offset, 0)))
	if q.Limit > 0 {
		query = query.Limit(uint64(q.Limit))
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.conn(ctx).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	items := make([]*entity.Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

// orderExpr sorts on a JSONB field. SortBy comes from the entity config,
// never from raw input.
func orderExpr(q entity.ListQuery) string {
	key := "(" + colData + "->>'" + strings.ReplaceAll(q.SortBy, "'", "''") + "')"
	switch q.SortType {
	case entity.FieldInt:
		key += "::numeric"
	case entity.FieldBool:
		key += "::boolean"
	default:
		key = "lower" + key
	}
	if q.Desc {
		return key + " DESC NULLS LAST"
	}
	return key + " ASC NULLS FIRST"
}

func selectRecords() sq.SelectBuilder {
	return psql.Select(colID, colEntity, colData, colSearch, colCreatedAt, colUpdatedAt).From(table)
}

func scanRecord(row pgx.Row) (*entity.Record, error) {
	var (
		rawID     string
		rec       entity.Record
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&rawID, &rec.Entity, &rec.Data, &rec.Search, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	recordID, err := id.ParseRecordID(rawID)
	if err != nil {
		return nil, err
	}
	rec.ID = recordID
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return &rec, nil
}
