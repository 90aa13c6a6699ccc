package services

import (
	"context"
	"testing"
	"time"

	"referr/internal/models"
	"referr/internal/observability"
	"referr/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SweepExpiredOTPs(t *testing.T) {
	otps := newFakeOTPRepo()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, otps.Create(ctx, &models.OTPChallenge{Email: "old@example.com", Code: "111111", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-45 * time.Minute)}))
	require.NoError(t, otps.Create(ctx, &models.OTPChallenge{Email: "older@example.com", Code: "222222", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, otps.Create(ctx, &models.OTPChallenge{Email: "new@example.com", Code: "333333", CreatedAt: now, ExpiresAt: now.Add(15 * time.Minute)}))

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	s, err := NewScheduler(otps, time.Hour, metrics, logger.NewNop())
	require.NoError(t, err)
	defer s.Shutdown()

	assert.Equal(t, int64(2), s.SweepExpiredOTPs(ctx))
	assert.Equal(t, 1, otps.count())
	assert.Equal(t, int64(0), s.SweepExpiredOTPs(ctx))

	n, err := testutil.GatherAndCount(reg, "referr_scheduler_otp_swept_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
