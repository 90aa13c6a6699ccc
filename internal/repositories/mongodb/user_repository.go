package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"
	"referr/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultUserCacheTTL = 15 * time.Minute

type userRepository struct {
	collection *mongo.Collection
	cache      interfaces.CacheService
	cacheTTL   time.Duration
}

// NewUserRepository returns the Mongo-backed identity store. cache may be nil.
func NewUserRepository(db *mongo.Database, cache interfaces.CacheService, cacheTTL time.Duration) interfaces.UserRepository {
	if cacheTTL <= 0 {
		cacheTTL = defaultUserCacheTTL
	}
	return &userRepository{
		collection: db.Collection(database.UsersCollection),
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to create user: %w: %w", models.ErrConflict, err)
		}
		return fmt.Errorf("failed to create user: %w: %w", models.ErrPersistence, err)
	}

	r.cacheUser(ctx, user)

	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if user := r.getUserFromCache(ctx, utils.CacheUserPrefix+id.Hex()); user != nil {
		return user, nil
	}

	user, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil || user == nil {
		return user, err
	}

	r.cacheUser(ctx, user)

	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if user := r.getUserFromCache(ctx, utils.CacheUserEmailPrefix+email); user != nil {
		return user, nil
	}

	user, err := r.findOne(ctx, bson.M{"email": email})
	if err != nil || user == nil {
		return user, err
	}

	r.cacheUser(ctx, user)

	return user, nil
}

// Referral code lookups always hit the database; codes are checked for
// uniqueness and a stale cache entry would let a duplicate through.
func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"referral_code": code})
}

func (r *userRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"referral_code": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check referral code: %w: %w", models.ErrPersistence, err)
	}
	return count > 0, nil
}

func (r *userRepository) CompleteOnboarding(ctx context.Context, id primitive.ObjectID, profile *models.Profile) (*models.User, bool, error) {
	update := bson.M{
		"$set": bson.M{
			"full_name":     profile.FullName,
			"state":         profile.State,
			"country":       profile.Country,
			"has_onboarded": true,
			"updated_at":    time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "has_onboarded": false}, update, opts).Decode(&user)
	if err == nil {
		r.invalidateUserCache(ctx, &user)
		return &user, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to complete onboarding: %w: %w", models.ErrPersistence, err)
	}

	// Either the user is missing or someone else already onboarded it.
	existing, err := r.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w: %w", models.ErrPersistence, err)
	}
	return &user, nil
}

// Cache helpers. Cache failures never fail the request.
func (r *userRepository) cacheUser(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}

	_ = r.cache.Set(ctx, utils.CacheUserPrefix+user.ID.Hex(), user, r.cacheTTL)
	if user.Email != "" {
		_ = r.cache.Set(ctx, utils.CacheUserEmailPrefix+user.Email, user, r.cacheTTL)
	}
}

func (r *userRepository) getUserFromCache(ctx context.Context, key string) *models.User {
	if r.cache == nil {
		return nil
	}

	var user models.User
	if err := r.cache.Get(ctx, key, &user); err != nil {
		return nil
	}

	return &user
}

func (r *userRepository) invalidateUserCache(ctx context.Context, user *models.User) {
	if r.cache == nil {
		return
	}

	keys := []string{utils.CacheUserPrefix + user.ID.Hex()}
	if user.Email != "" {
		keys = append(keys, utils.CacheUserEmailPrefix+user.Email)
	}
	_ = r.cache.Delete(ctx, keys...)
}
