package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"
	"referr/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type otpRepository struct {
	collection *mongo.Collection
}

func NewOTPRepository(db *mongo.Database) interfaces.OTPRepository {
	return &otpRepository{
		collection: db.Collection(database.OTPTokensCollection),
	}
}

func (r *otpRepository) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	challenge.ID = primitive.NewObjectID()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, challenge); err != nil {
		return fmt.Errorf("failed to create otp: %w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (r *otpRepository) DeleteByEmail(ctx context.Context, email string) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"email": email}); err != nil {
		return fmt.Errorf("failed to delete otps: %w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (r *otpRepository) FindLatestByEmail(ctx context.Context, email string) (*models.OTPChallenge, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	var challenge models.OTPChallenge
	err := r.collection.FindOne(ctx, bson.M{"email": email}, opts).Decode(&challenge)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get otp: %w: %w", models.ErrPersistence, err)
	}
	return &challenge, nil
}

// Consume deletes by _id; the server serializes concurrent deletes, so
// exactly one caller observes DeletedCount == 1.
func (r *otpRepository) Consume(ctx context.Context, challenge *models.OTPChallenge) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": challenge.ID})
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w: %w", models.ErrPersistence, err)
	}
	return res.DeletedCount == 1, nil
}

func (r *otpRepository) Delete(ctx context.Context, challenge *models.OTPChallenge) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": challenge.ID}); err != nil {
		return fmt.Errorf("failed to delete otp: %w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired otps: %w: %w", models.ErrPersistence, err)
	}
	return res.DeletedCount, nil
}
