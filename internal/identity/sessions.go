package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound is returned when a token is unknown or expired.
var ErrSessionNotFound = errors.New("identity: session not found")

// Identity is the session payload resolved on every authenticated request.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
}

// SessionStore keeps bearer tokens in redis with a sliding TTL.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore builds a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// TTL returns the session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// Create opens a session for the user and returns the bearer token.
func (s *SessionStore) Create(ctx context.Context, user User) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(Identity{
		UserID:   user.ID,
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, sessionKey(token), payload, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Get resolves a token and refreshes its TTL.
func (s *SessionStore) Get(ctx context.Context, token string) (Identity, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Identity{}, ErrSessionNotFound
		}
		return Identity{}, err
	}
	var ident Identity
	if err := json.Unmarshal(data, &ident); err != nil {
		return Identity{}, err
	}
	// Sliding expiry: any authenticated request keeps the session alive.
	if err := s.client.Expire(ctx, sessionKey(token), s.ttl).Err(); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

// Delete closes a session. Unknown tokens are not an error.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	err := s.client.Del(ctx, sessionKey(token)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func sessionKey(token string) string {
	return "session:" + token
}
