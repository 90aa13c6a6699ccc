package interfaces

import (
	"context"
	"time"

	"referr/internal/models"
)

type OTPRepository interface {
	Create(ctx context.Context, challenge *models.OTPChallenge) error
	DeleteByEmail(ctx context.Context, email string) error
	// FindLatestByEmail returns (nil, nil) when no challenge is outstanding.
	FindLatestByEmail(ctx context.Context, email string) (*models.OTPChallenge, error)
	// Consume removes the challenge and reports whether this caller was the
	// one that removed it. Only one of several concurrent callers gets true.
	Consume(ctx context.Context, challenge *models.OTPChallenge) (bool, error)
	Delete(ctx context.Context, challenge *models.OTPChallenge) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
