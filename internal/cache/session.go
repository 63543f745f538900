package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrSessionNotFound — сессии с таким токеном нет.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired — сессия найдена, но её срок истёк.
	ErrSessionExpired = errors.New("session expired")
)

// Session — авторизованная сессия пользователя.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionManager хранит сессии в Redis: запись по токену плюс множество
// токенов на пользователя для массового отзыва. TTL ключа страхует от
// мусора, но срок дополнительно проверяется по ExpiresAt при чтении.
type SessionManager struct {
	client *Client
	logger *log.Entry
	ttl    time.Duration
}

// NewSessionManager создаёт менеджер сессий с заданным сроком жизни.
func NewSessionManager(client *Client, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client: client,
		logger: log.WithField("component", "session-manager"),
		ttl:    ttl,
	}
}

// Create выпускает новую сессию пользователя.
func (m *SessionManager) Create(ctx context.Context, userID string) (Session, error) {
	now := time.Now().UTC()
	session := Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	encoded, err := json.Marshal(session)
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode session: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.Token), encoded, m.ttl)
	pipe.SAdd(ctx, userSessionsKey(userID), session.Token)
	pipe.Expire(ctx, userSessionsKey(userID), m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get возвращает сессию по токену.
func (m *SessionManager) Get(ctx context.Context, token string) (Session, error) {
	data, err := m.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}

	if time.Now().UTC().After(session.ExpiresAt) {
		// Ключ пережил срок (например, TTL сбросили вручную) —
		// вычищаем и отвечаем как про истёкшую.
		m.remove(ctx, session)
		return Session{}, ErrSessionExpired
	}
	return session, nil
}

// Delete отзывает одну сессию.
func (m *SessionManager) Delete(ctx context.Context, token string) error {
	data, err := m.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	session := Session{Token: token}
	if err := json.Unmarshal(data, &session); err != nil {
		m.logger.WithError(err).WithField("token", token).Warn("deleting unreadable session record")
	}
	m.remove(ctx, session)
	return nil
}

func (m *SessionManager) remove(ctx context.Context, session Session) {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, sessionKey(session.Token))
	if session.UserID != "" {
		pipe.SRem(ctx, userSessionsKey(session.UserID), session.Token)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.WithError(err).WithField("token", session.Token).Warn("failed to delete session")
	}
}

// DeleteAllForUser отзывает все сессии пользователя.
func (m *SessionManager) DeleteAllForUser(ctx context.Context, userID string) error {
	setKey := userSessionsKey(userID)
	tokens, err := m.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list sessions of user %s: %w", userID, err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, sessionKey(token))
	}
	keys = append(keys, setKey)

	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete sessions of user %s: %w", userID, err)
	}
	return nil
}
