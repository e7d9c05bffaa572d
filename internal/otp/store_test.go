package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, 5*time.Minute, 3), mr
}

func TestRedisStore_VerifyConsumesCode(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, NamespacePhone, "+919876543210", "123456"))
	assert.True(t, mr.Exists("otp:phone:+919876543210"))
	assert.Equal(t, "123456", mr.HGet("otp:phone:+919876543210", "code"))

	require.NoError(t, s.Verify(ctx, NamespacePhone, "+919876543210", "123456"))
	assert.False(t, mr.Exists("otp:phone:+919876543210"))

	// A second use of the same code fails.
	assert.ErrorIs(t, s.Verify(ctx, NamespacePhone, "+919876543210", "123456"), ErrExpired)
}

func TestRedisStore_WrongCodesThenLockout(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, NamespacePhone, "p", "111111"))

	for want := 2; want >= 0; want-- {
		err := s.Verify(ctx, NamespacePhone, "p", "000000")
		var ice *InvalidCodeError
		require.True(t, errors.As(err, &ice), "got %v", err)
		assert.Equal(t, want, ice.Remaining)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	// Even the right code is refused once attempts are exhausted.
	assert.ErrorIs(t, s.Verify(ctx, NamespacePhone, "p", "111111"), ErrTooManyAttempts)
	assert.False(t, mr.Exists("otp:phone:p"))
}

func TestRedisStore_SaveResetsAttempts(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, NamespacePhone, "p", "111111"))
	require.Error(t, s.Verify(ctx, NamespacePhone, "p", "000000"))
	require.Error(t, s.Verify(ctx, NamespacePhone, "p", "000000"))

	require.NoError(t, s.Save(ctx, NamespacePhone, "p", "222222"))
	err := s.Verify(ctx, NamespacePhone, "p", "000000")
	var ice *InvalidCodeError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, 2, ice.Remaining)
	require.NoError(t, s.Verify(ctx, NamespacePhone, "p", "222222"))
}

func TestRedisStore_Expires(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, NamespaceReset, "a@b.com", "123456"))

	mr.FastForward(5*time.Minute + time.Second)

	assert.ErrorIs(t, s.Verify(ctx, NamespaceReset, "a@b.com", "123456"), ErrExpired)
}

func TestRedisStore_NamespacesAreSeparate(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, NamespaceReset, "a@b.com", "123456"))

	assert.ErrorIs(t, s.Verify(ctx, NamespaceResetToken, "a@b.com", "123456"), ErrExpired)
	require.NoError(t, s.Delete(ctx, NamespaceReset, "a@b.com"))
	assert.ErrorIs(t, s.Verify(ctx, NamespaceReset, "a@b.com", "123456"), ErrExpired)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, c)
	}
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****3210", mask("+919876543210"))
	assert.Equal(t, "****", mask("abc"))
}
