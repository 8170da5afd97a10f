package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caminomanager/internal/auth/models"
	id "caminomanager/pkg/domain"
	"caminomanager/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "camino:session:"
	refreshKeyPrefix = "camino:refresh:"
)

// RedisStore is the Redis-backed session store used when several web
// instances share sessions. Keys expire with the session.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func sessionRefreshSetKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String() + ":refresh"
}

func refreshKey(tokenHash string) string {
	return refreshKeyPrefix + tokenHash
}

func ttlUntil(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// Save writes the session and its refresh token in one MULTI block.
func (r *RedisStore) Save(ctx context.Context, session *models.Session, refresh *models.RefreshTokenRecord) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	var refreshJSON []byte
	if refresh != nil {
		if refreshJSON, err = json.Marshal(refresh); err != nil {
			return fmt.Errorf("marshal refresh token: %w", err)
		}
	}

	ttl := ttlUntil(session.ExpiresAt)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), sessionJSON, ttl)
		if refresh != nil {
			pipe.Set(ctx, refreshKey(refresh.TokenHash), refreshJSON, ttlUntil(refresh.ExpiresAt))
			pipe.SAdd(ctx, sessionRefreshSetKey(session.ID), refresh.TokenHash)
			pipe.Expire(ctx, sessionRefreshSetKey(session.ID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (r *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// ConsumeRefreshToken uses GETDEL so concurrent consumers of the same token
// see at most one success.
func (r *RedisStore) ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time) (*models.RefreshTokenRecord, error) {
	raw, err := r.client.GetDel(ctx, refreshKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("refresh token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	var rec models.RefreshTokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	if !now.Before(rec.ExpiresAt) {
		return nil, fmt.Errorf("refresh token expired: %w", sentinel.ErrExpired)
	}
	r.client.SRem(ctx, sessionRefreshSetKey(rec.SessionID), tokenHash)
	return &rec, nil
}

// Revoke deletes the session and all refresh tokens registered for it.
func (r *RedisStore) Revoke(ctx context.Context, sessionID id.SessionID) error {
	hashes, err := r.client.SMembers(ctx, sessionRefreshSetKey(sessionID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list session refresh tokens: %w", errors.Join(sentinel.ErrUnavailable, err))
	}

	keys := make([]string, 0, len(hashes)+2)
	keys = append(keys, sessionKey(sessionID), sessionRefreshSetKey(sessionID))
	for _, h := range hashes {
		keys = append(keys, refreshKey(h))
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("revoke session: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if deleted == 0 {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
