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

type referralStatRepository struct {
	collection *mongo.Collection
}

func NewReferralStatRepository(db *mongo.Database) interfaces.ReferralStatRepository {
	return &referralStatRepository{
		collection: db.Collection(database.ReferralStatsCollection),
	}
}

func (r *referralStatRepository) GetByReferrer(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error) {
	var stat models.ReferralStat
	err := r.collection.FindOne(ctx, bson.M{"referrer_id": referrerID}).Decode(&stat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get referral stats: %w: %w", models.ErrPersistence, err)
	}
	return &stat, nil
}

func (r *referralStatRepository) EnsureForReferrer(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error) {
	update := bson.M{
		"$setOnInsert": insertDefaults(code, time.Now()),
	}
	return r.upsert(ctx, referrerID, update, "ensure referral stats")
}

func (r *referralStatRepository) IncrementClicks(ctx context.Context, code string) (*models.ReferralStat, error) {
	update := bson.M{
		"$inc": bson.M{"clicks": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var stat models.ReferralStat
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"referral_code": code}, update, opts).Decode(&stat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to increment clicks: %w: %w", models.ErrPersistence, err)
	}
	return &stat, nil
}

func (r *referralStatRepository) IncrementSignups(ctx context.Context, referrerID primitive.ObjectID, code string) (*models.ReferralStat, error) {
	now := time.Now()
	update := bson.M{
		"$setOnInsert": insertDefaults(code, now, "signups", "updated_at"),
		"$inc":         bson.M{"signups": 1},
		"$set":         bson.M{"updated_at": now},
	}
	return r.upsert(ctx, referrerID, update, "increment signups")
}

func (r *referralStatRepository) IncrementConversions(ctx context.Context, referrerID primitive.ObjectID, code string, reward float64) (*models.ReferralStat, error) {
	now := time.Now()
	update := bson.M{
		"$setOnInsert": insertDefaults(code, now, "conversions", "earnings", "updated_at"),
		"$inc":         bson.M{"conversions": 1, "earnings": reward},
		"$set":         bson.M{"updated_at": now},
	}
	return r.upsert(ctx, referrerID, update, "increment conversions")
}

func (r *referralStatRepository) Leaderboard(ctx context.Context, skip, limit int64) ([]*models.LeaderboardEntry, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "conversions", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.M{
			"from":         database.UsersCollection,
			"localField":   "referrer_id",
			"foreignField": "_id",
			"as":           "referrer",
		}}},
		{{Key: "$project", Value: bson.M{
			"referrer_id":   1,
			"conversions":   1,
			"referrer_name": bson.M{"$arrayElemAt": bson.A{"$referrer.full_name", 0}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w: %w", models.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	entries := make([]*models.LeaderboardEntry, 0, limit)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w: %w", models.ErrPersistence, err)
	}

	return entries, nil
}

func (r *referralStatRepository) Count(ctx context.Context) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count referral stats: %w: %w", models.ErrPersistence, err)
	}
	return count, nil
}

func (r *referralStatRepository) upsert(ctx context.Context, referrerID primitive.ObjectID, update bson.M, op string) (*models.ReferralStat, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stat models.ReferralStat
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"referrer_id": referrerID}, update, opts).Decode(&stat)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Two first-time upserts raced on the unique referrer_id index; the
		// loser retries once and now matches the winner's document.
		err = r.collection.FindOneAndUpdate(ctx, bson.M{"referrer_id": referrerID}, update, opts).Decode(&stat)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w: %w", op, models.ErrPersistence, err)
	}
	return &stat, nil
}

// insertDefaults builds the $setOnInsert document. referrer_id comes from the
// upsert filter. Fields the same update touches through $inc or $set must be
// omitted or Mongo rejects the update with a path conflict.
func insertDefaults(code string, now time.Time, omit ...string) bson.M {
	doc := bson.M{
		"referral_code": code,
		"clicks":        int64(0),
		"signups":       int64(0),
		"conversions":   int64(0),
		"earnings":      float64(0),
		"created_at":    now,
		"updated_at":    now,
	}
	for _, field := range omit {
		delete(doc, field)
	}
	return doc
}
