package interfaces

import (
	"context"

	"referr/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralStatRepository is the attribution ledger. Every increment is a
// single atomic update and returns the record as it is after the update.
type ReferralStatRepository interface {
	GetByReferrer(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error)
	EnsureForReferrer(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error)

	// IncrementClicks never creates a record; it returns nil when no record
	// carries code.
	IncrementClicks(ctx context.Context, code string) (*models.ReferralStat, error)
	IncrementSignups(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error)
	IncrementConversions(ctx context.Context, referrerID primitive.ObjectID, code string, reward float64) (*models.ReferralStat, error)

	// Leaderboard returns records ordered by conversions, highest first, ties
	// broken by creation order.
	Leaderboard(ctx context.Context, skip, limit int64) ([]*models.LeaderboardEntry, error)
	Count(ctx context.Context) (int64, error)
}
