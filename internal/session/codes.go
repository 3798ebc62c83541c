package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStore maps shareable self-check-in codes to session refs in redis,
// with a TTL so stale codes stop resolving.
type CodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCodeStore creates a code store.
func NewCodeStore(client *redis.Client, ttl time.Duration) *CodeStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CodeStore{client: client, ttl: ttl}
}

func codeKey(code string) string { return "rollcall:checkin:" + code }
func refKey(ref string) string   { return "rollcall:checkin:ref:" + ref }

// Issue generates a short code for a session and stores both directions of
// the mapping so Revoke can find the code by ref.
func (s *CodeStore) Issue(ctx context.Context, ref string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		buf := make([]byte, 3)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		code := hex.EncodeToString(buf)

		ok, err := s.client.SetNX(ctx, codeKey(code), ref, s.ttl).Result()
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if err := s.client.Set(ctx, refKey(ref), code, s.ttl).Err(); err != nil {
			return "", err
		}
		return code, nil
	}
	return "", errors.New("check-in code generation exhausted retries")
}

// Resolve returns the session ref for a code, or ErrCodeExpired.
func (s *CodeStore) Resolve(ctx context.Context, code string) (string, error) {
	ref, err := s.client.Get(ctx, codeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCodeExpired
		}
		return "", err
	}
	return ref, nil
}

// Revoke drops the code for a session once its check-in window closes.
func (s *CodeStore) Revoke(ctx context.Context, ref string) {
	code, err := s.client.Get(ctx, refKey(ref)).Result()
	if err != nil {
		return
	}
	_ = s.client.Del(ctx, codeKey(code), refKey(ref)).Err()
}
