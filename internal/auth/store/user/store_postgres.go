package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

const (
	usersTable       = "users"
	colID            = "id"
	colEmail         = "email"
	colPasswordHash  = "password_hash"
	colEmailVerified = "email_verified"
	colCreatedAt     = "created_at"

	confirmationsTable = "confirmation_tokens"
	colTokenHash       = "token_hash"
	colUserID          = "user_id"
	colKind            = "kind"
	colExpiresAt       = "expires_at"
	colUsedAt          = "used_at"

	uniqueViolation = "23505"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists users and confirmation tokens. Calls join the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewPostgres constructs a Postgres-backed user store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, getter: trmpgx.DefaultCtxGetter}
}

func (s *PostgresStore) conn(ctx context.Context) trmpgx.Tr {
	return s.getter.DefaultTrOrDB(ctx, s.pool)
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	sqlStr, args, err := psql.Insert(usersTable).
		Columns(colID, colEmail, colPasswordHash, colEmailVerified, colCreatedAt).
		Values(user.ID.String(), normalizeEmail(user.Email), user.PasswordHash, user.EmailVerified, user.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).Exec(ctx, sqlStr, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, sq.Eq{colID: userID.String()})
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, sq.Eq{colEmail: normalizeEmail(email)})
}

func (s *PostgresStore) findOne(ctx context.Context, where sq.Eq) (*models.User, error) {
	sqlStr, args, err := psql.Select(colID, colEmail, colPasswordHash, colEmailVerified, colCreatedAt).
		From(usersTable).
		Where(where).
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		u     models.User
		rawID string
	)
	err = s.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(&rawID, &u.Email, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if u.ID, err = id.ParseUserID(rawID); err != nil {
		return nil, fmt.Errorf("decode user id: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) MarkEmailVerified(ctx context.Context, userID id.UserID) error {
	sqlStr, args, err := psql.Update(usersTable).
		Set(colEmailVerified, true).
		Where(sq.Eq{colID: userID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.conn(ctx).Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CreateConfirmation(ctx context.Context, token *models.ConfirmationToken) error {
	sqlStr, args, err := psql.Insert(confirmationsTable).
		Columns(colTokenHash, colUserID, colKind, colExpiresAt).
		Values(token.TokenHash, token.UserID.String(), string(token.Kind), token.ExpiresAt.UTC()).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert confirmation: %w", err)
	}
	return nil
}

// ConsumeConfirmation locks the row, validates it and stamps used_at.
func (s *PostgresStore) ConsumeConfirmation(ctx context.Context, tokenHash string, kind models.ConfirmationKind, now time.Time) (*models.ConfirmationToken, error) {
	sqlStr, args, err := psql.Select(colTokenHash, colUserID, colKind, colExpiresAt, colUsedAt).
		From(confirmationsTable).
		Where(sq.Eq{colTokenHash: tokenHash}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, err
	}

	var (
		token  models.ConfirmationToken
		rawID  string
		rawKnd string
	)
	err = s.conn(ctx).QueryRow(ctx, sqlStr, args...).Scan(&token.TokenHash, &rawID, &rawKnd, &token.ExpiresAt, &token.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("confirmation not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select confirmation: %w", err)
	}
	token.Kind = models.ConfirmationKind(rawKnd)
	if token.UserID, err = id.ParseUserID(rawID); err != nil {
		return nil, fmt.Errorf("decode confirmation user: %w", err)
	}
	if err := confirmationState(&token, kind, now); err != nil {
		return nil, err
	}

	updSQL, updArgs, err := psql.Update(confirmationsTable).
		Set(colUsedAt, now.UTC()).
		Where(sq.And{sq.Eq{colTokenHash: tokenHash}, sq.Eq{colUsedAt: nil}}).
		ToSql()
	if err != nil {
		return nil, err
	}
	tag, err := s.conn(ctx).Exec(ctx, updSQL, updArgs...)
	if err != nil {
		return nil, fmt.Errorf("mark confirmation used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("confirmation already used: %w", sentinel.ErrAlreadyUsed)
	}
	token.MarkUsed(now)
	return &token, nil
}
