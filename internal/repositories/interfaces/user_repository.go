package interfaces

import (
	"context"

	"referr/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository stores identities. Lookups return (nil, nil) when the user
// does not exist.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)

	// CompleteOnboarding writes profile and sets has_onboarded only if it was
	// still false. It returns the stored user and whether this call flipped
	// the flag.
	CompleteOnboarding(ctx context.Context, id primitive.ObjectID, profile *models.Profile) (*models.User, bool, error)
}
