package services

import (
	"context"
	"fmt"
	"time"

	"referr/internal/observability"
	"referr/internal/repositories/interfaces"
	"referr/pkg/logger"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs housekeeping jobs in the background.
type Scheduler struct {
	sched   gocron.Scheduler
	otpRepo interfaces.OTPRepository
	metrics *observability.Metrics
	logger  *logger.Logger
}

func NewScheduler(otpRepo interfaces.OTPRepository, sweepInterval time.Duration, metrics *observability.Metrics, logger *logger.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:   sched,
		otpRepo: otpRepo,
		metrics: metrics,
		logger:  logger,
	}

	// Mongo's TTL monitor only runs about once a minute; the sweep keeps the
	// collection tidy regardless.
	_, err = sched.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			s.SweepExpiredOTPs(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule otp sweep: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// SweepExpiredOTPs deletes challenges past their expiry and returns how many
// were removed.
func (s *Scheduler) SweepExpiredOTPs(ctx context.Context) int64 {
	n, err := s.otpRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		s.logger.WithError(err).Error("Failed to sweep expired otps")
		return 0
	}

	s.metrics.OTPSwept(n)
	if n > 0 {
		s.logger.WithField("count", n).Debug("Swept expired otps")
	}
	return n
}
