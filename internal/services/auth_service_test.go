package services

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"referr/internal/models"
	"referr/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RequestOTP(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	resp, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "  Jane@Example.COM "})
	require.NoError(t, err)
	assert.Equal(t, int64(15*60), resp.ExpiresIn)
	assert.Equal(t, 6, resp.Length)

	sent := env.mailer.last()
	assert.Equal(t, "jane@example.com", sent.email)
	assert.Regexp(t, regexp.MustCompile(`^[0-9]{6}$`), sent.code)

	challenge, err := env.otps.FindLatestByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, challenge)
	assert.Equal(t, sent.code, challenge.Code)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), challenge.ExpiresAt, 5*time.Second)
}

func TestAuthService_RequestOTP_InvalidEmail(t *testing.T) {
	env := newTestEnv()

	for _, email := range []string{"", "not-an-email", "a@"} {
		_, err := env.auth.RequestOTP(context.Background(), &RequestOTPRequest{Email: email})
		assert.ErrorIs(t, err, models.ErrValidation, email)
	}
	assert.Equal(t, 0, env.otps.count())
}

func TestAuthService_RequestOTP_ReissueInvalidatesPrevious(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "jane@example.com"})
	require.NoError(t, err)
	first := env.mailer.last().code

	_, err = env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "jane@example.com"})
	require.NoError(t, err)
	second := env.mailer.last().code
	assert.Equal(t, 1, env.otps.count())

	if first != second {
		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: first})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	}

	_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: second})
	assert.NoError(t, err)
}

func TestAuthService_RequestOTP_DispatchFailure(t *testing.T) {
	env := newTestEnv()
	env.mailer.err = errors.New("provider down")

	_, err := env.auth.RequestOTP(context.Background(), &RequestOTPRequest{Email: "jane@example.com"})
	assert.ErrorIs(t, err, models.ErrDispatchFailure)
	assert.Equal(t, 0, env.otps.count(), "undelivered challenge must not stay usable")
}

func TestAuthService_VerifyOTP_NewUser(t *testing.T) {
	env := newTestEnv()

	resp, err := env.login("jane@example.com", "")
	require.NoError(t, err)

	assert.True(t, resp.IsNewUser)
	assert.Equal(t, "jane@example.com", resp.User.Email)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{8}$`), resp.User.ReferralCode)
	assert.False(t, resp.User.HasOnboarded)
	assert.Empty(t, resp.User.ReferredBy)

	claims, err := env.auth.ValidateSession(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(14*24*time.Hour), resp.ExpiresAt, 5*time.Second)

	assert.Equal(t, 0, env.otps.count(), "challenge is consumed")
}

func TestAuthService_VerifyOTP_ExistingUser(t *testing.T) {
	env := newTestEnv()
	referrer := env.users.add("ref@example.com", "REFCODE1", "")

	first, err := env.login("jane@example.com", referrer.ReferralCode)
	require.NoError(t, err)
	require.True(t, first.IsNewUser)

	second, err := env.login("JANE@example.com", referrer.ReferralCode)
	require.NoError(t, err)

	assert.False(t, second.IsNewUser)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, first.User.ReferralCode, second.User.ReferralCode)

	stat, _ := env.stats.GetByReferrer(context.Background(), referrer.ID)
	require.NotNil(t, stat)
	assert.Equal(t, int64(1), stat.Signups, "a returning login is not a signup")
}

func TestAuthService_VerifyOTP_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("no challenge", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: "123456"})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	})

	t.Run("wrong code keeps challenge", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "jane@example.com"})
		require.NoError(t, err)

		wrong := "000000"
		if env.mailer.last().code == wrong {
			wrong = "111111"
		}
		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: wrong})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
		assert.Equal(t, 1, env.otps.count())

		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: env.mailer.last().code})
		assert.NoError(t, err)
	})

	t.Run("expired code is deleted", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "jane@example.com"})
		require.NoError(t, err)

		env.auth.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: env.mailer.last().code})
		assert.ErrorIs(t, err, models.ErrCodeExpired)
		assert.Equal(t, 0, env.otps.count())

		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: env.mailer.last().code})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	})

	t.Run("code is single use", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.login("jane@example.com", "")
		require.NoError(t, err)

		_, err = env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: env.mailer.last().code})
		assert.ErrorIs(t, err, models.ErrInvalidCode)
	})

	t.Run("malformed code", func(t *testing.T) {
		env := newTestEnv()
		_, err := env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: "12ab"})
		assert.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestAuthService_VerifyOTP_ConcurrentSubmissionsConsumeOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: "jane@example.com"})
	require.NoError(t, err)
	code := env.mailer.last().code

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, invalid := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: "jane@example.com", OTP: code})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrInvalidCode):
				invalid++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, invalid)
}

func TestAuthService_VerifyOTP_Referral(t *testing.T) {
	ctx := context.Background()

	t.Run("known referrer gets a signup", func(t *testing.T) {
		env := newTestEnv()
		referrer := env.users.add("ref@example.com", "REFCODE1", "")

		resp, err := env.login("jane@example.com", "REFCODE1")
		require.NoError(t, err)
		assert.Equal(t, "REFCODE1", resp.User.ReferredBy)

		stat, _ := env.stats.GetByReferrer(ctx, referrer.ID)
		require.NotNil(t, stat, "record is created on first signup")
		assert.Equal(t, int64(1), stat.Signups)
		assert.Equal(t, int64(0), stat.Clicks)
		assert.Equal(t, int64(0), stat.Conversions)
		assert.Equal(t, 0.0, stat.Earnings)
		assert.Equal(t, "REFCODE1", stat.ReferralCode)

		require.Len(t, env.notifier.events[referrer.ID], 1)
		assert.Equal(t, int64(1), env.notifier.events[referrer.ID][0].Signups)
	})

	t.Run("unknown referrer is stored as-is", func(t *testing.T) {
		env := newTestEnv()

		resp, err := env.login("jane@example.com", "nosuchcode")
		require.NoError(t, err)
		assert.Equal(t, "nosuchcode", resp.User.ReferredBy)

		count, _ := env.stats.Count(ctx)
		assert.Equal(t, int64(0), count)
	})

	t.Run("concurrent signups all count", func(t *testing.T) {
		env := newTestEnv()
		referrer := env.users.add("ref@example.com", "REFCODE1", "")

		const n = 25
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			email := "user" + utils.GenerateRandomNumericString(8) + "@example.com"
			_, err := env.auth.RequestOTP(ctx, &RequestOTPRequest{Email: email})
			require.NoError(t, err)
			challenge, _ := env.otps.FindLatestByEmail(ctx, email)

			wg.Add(1)
			go func(email, code string) {
				defer wg.Done()
				_, err := env.auth.VerifyOTP(ctx, &VerifyOTPRequest{Email: email, OTP: code, ReferredBy: "REFCODE1"})
				assert.NoError(t, err)
			}(email, challenge.Code)
		}
		wg.Wait()

		stat, _ := env.stats.GetByReferrer(ctx, referrer.ID)
		require.NotNil(t, stat)
		assert.Equal(t, int64(n), stat.Signups)
	})
}

func TestAuthService_VerifyOTP_ConcurrentFirstLogin(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Two different valid challenges cannot coexist, so simulate the race at
	// the identity step directly.
	var wg sync.WaitGroup
	users := make([]*models.User, 2)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, _, err := env.auth.resolveIdentity(ctx, "jane@example.com", "")
			assert.NoError(t, err)
			users[i] = u
		}(i)
	}
	wg.Wait()

	require.NotNil(t, users[0])
	require.NotNil(t, users[1])
	assert.Equal(t, users[0].ID, users[1].ID)
}

func TestAuthService_ValidateSession(t *testing.T) {
	env := newTestEnv()

	_, err := env.auth.ValidateSession(context.Background(), "garbage")
	assert.Error(t, err)
	assert.False(t, utils.IsTokenExpired(err))
}
