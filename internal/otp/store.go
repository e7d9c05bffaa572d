// Package otp issues and checks one-time codes for phone login and password
// reset. Codes live in Redis with a TTL and an attempt counter so any API
// replica can verify a code another replica issued.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespaces keep the code spaces of different flows apart.
const (
	NamespacePhone      = "phone"
	NamespaceReset      = "reset"
	NamespaceResetToken = "reset-token"
)

var (
	ErrExpired         = errors.New("otp expired or not found")
	ErrTooManyAttempts = errors.New("too many failed attempts")
	ErrInvalidCode     = errors.New("invalid otp")
)

// InvalidCodeError is a wrong guess; Remaining attempts are left.
type InvalidCodeError struct{ Remaining int }

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp, %d attempt(s) remaining", e.Remaining)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// Store keeps codes per (namespace, subject).
type Store interface {
	Save(ctx context.Context, namespace, subject, code string) error
	Verify(ctx context.Context, namespace, subject, code string) error
	Delete(ctx context.Context, namespace, subject string) error
}

// RedisStore keeps each code in a hash {code, attempts} under
// otp:<namespace>:<subject>.
type RedisStore struct {
	rdb         redis.UniversalClient
	ttl         time.Duration
	maxAttempts int
}

func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, maxAttempts int) *RedisStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &RedisStore{rdb: rdb, ttl: ttl, maxAttempts: maxAttempts}
}

func key(namespace, subject string) string { return "otp:" + namespace + ":" + subject }

// TTL is how long a saved code stays valid.
func (s *RedisStore) TTL() time.Duration { return s.ttl }

// Save replaces any previous code for subject and resets its attempts.
func (s *RedisStore) Save(ctx context.Context, namespace, subject, code string) error {
	k := key(namespace, subject)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, "code", code, "attempts", 0)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp save: %w", err)
	}
	return nil
}

// verifyScript runs the whole check atomically.
// Returns {status, remaining}: 1 ok, 0 wrong code, -1 missing, -2 exhausted.
var verifyScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
  return {-1, 0}
end
local max = tonumber(ARGV[2])
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
if attempts >= max then
  redis.call('DEL', KEYS[1])
  return {-2, 0}
end
if code == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {1, 0}
end
attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {0, max - attempts}
`)

// Verify consumes the code on success. A wrong code counts an attempt; once
// maxAttempts wrong codes were tried the next call deletes the code.
func (s *RedisStore) Verify(ctx context.Context, namespace, subject, code string) error {
	res, err := verifyScript.Run(ctx, s.rdb, []string{key(namespace, subject)}, code, s.maxAttempts).Int64Slice()
	if err != nil {
		return fmt.Errorf("otp verify: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("otp verify: unexpected reply %v", res)
	}
	switch res[0] {
	case 1:
		return nil
	case -1:
		return ErrExpired
	case -2:
		return ErrTooManyAttempts
	default:
		return &InvalidCodeError{Remaining: int(res[1])}
	}
}

func (s *RedisStore) Delete(ctx context.Context, namespace, subject string) error {
	return s.rdb.Del(ctx, key(namespace, subject)).Err()
}

// GenerateCode returns six random decimal digits.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
