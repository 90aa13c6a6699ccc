package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*miniredis.Miniredis, interfaces.OTPRepository) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewOTPRepository(client)
}

func issue(t *testing.T, repo interfaces.OTPRepository, email, code string, now time.Time) *models.OTPChallenge {
	t.Helper()

	challenge := models.IssueChallenge(email, code, now, 15*time.Minute).Challenge
	require.NoError(t, repo.Create(context.Background(), challenge))
	require.False(t, challenge.ID.IsZero())
	return challenge
}

func TestOTPRepository_CreateAndFind(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	issued := issue(t, repo, "jane@example.com", "123456", now)

	got, err := repo.FindLatestByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, "123456", got.Code)
	assert.WithinDuration(t, issued.ExpiresAt, got.ExpiresAt, time.Millisecond)

	ttl := mr.TTL("otp:jane@example.com")
	assert.Greater(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 30*time.Minute)

	missing, err := repo.FindLatestByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOTPRepository_ExpiredCodeStillReadable(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now()

	issued := issue(t, repo, "jane@example.com", "123456", now)

	late := now.Add(15*time.Minute + time.Second)
	mr.FastForward(15*time.Minute + time.Second)

	got, err := repo.FindLatestByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)

	err = models.CheckChallenge(models.StateFromChallenge(got), "123456", late)
	assert.ErrorIs(t, err, models.ErrCodeExpired)

	err = models.CheckChallenge(models.StateFromChallenge(got), "654321", late)
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	// Verification drops an expired challenge it has read.
	require.NoError(t, repo.Delete(ctx, issued))
	assert.False(t, mr.Exists("otp:jane@example.com"))
}

func TestOTPRepository_KeyGoneAfterGrace(t *testing.T) {
	mr, repo := newTestRepository(t)
	issue(t, repo, "jane@example.com", "123456", time.Now())

	mr.FastForward(30*time.Minute + time.Second)

	got, err := repo.FindLatestByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOTPRepository_ReissueReplaces(t *testing.T) {
	_, repo := newTestRepository(t)
	ctx := context.Background()

	first := issue(t, repo, "jane@example.com", "111111", time.Now())
	second := issue(t, repo, "jane@example.com", "222222", time.Now())

	got, err := repo.FindLatestByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)

	// The stale challenge must not take the fresh one with it.
	ok, err := repo.Consume(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repo.FindLatestByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
}

func TestOTPRepository_ConsumeOnce(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()

	challenge := issue(t, repo, "jane@example.com", "123456", time.Now())

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.Consume(ctx, challenge)
			assert.NoError(t, err)
			if ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.False(t, mr.Exists("otp:jane@example.com"))

	ok, err := repo.Consume(ctx, challenge)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOTPRepository_DeleteByEmail(t *testing.T) {
	mr, repo := newTestRepository(t)
	ctx := context.Background()

	issue(t, repo, "jane@example.com", "123456", time.Now())
	issue(t, repo, "john@example.com", "654321", time.Now())

	require.NoError(t, repo.DeleteByEmail(ctx, "jane@example.com"))
	assert.False(t, mr.Exists("otp:jane@example.com"))
	assert.True(t, mr.Exists("otp:john@example.com"))

	n, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}
