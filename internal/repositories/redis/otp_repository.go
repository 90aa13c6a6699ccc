package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// deleteIfCurrent removes the key only while it still holds the challenge
// with the given id, so a newer challenge is never consumed by mistake.
var deleteIfCurrent = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
	return 0
end
if cjson.decode(v)["id"] ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

const expiredGrace = utils.OTPExpiry

// otpRepository keeps at most one challenge per address under otp:<email>.
// Issuing overwrites the key and Redis expires it on its own, a grace window
// after the challenge itself expires.
type otpRepository struct {
	client *redis.Client
}

func NewOTPRepository(client *redis.Client) interfaces.OTPRepository {
	return &otpRepository{client: client}
}

func otpKey(email string) string {
	return utils.CacheOTPPrefix + email
}

func (r *otpRepository) Create(ctx context.Context, challenge *models.OTPChallenge) error {
	challenge.ID = primitive.NewObjectID()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}

	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("failed to encode otp: %w", err)
	}

	// The key outlives the challenge by one validity window so a late but
	// correct code still reads as expired rather than unknown.
	ttl := time.Until(challenge.ExpiresAt) + expiredGrace
	if ttl < time.Second {
		ttl = time.Second
	}

	if err := r.client.Set(ctx, otpKey(challenge.Email), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create otp: %w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (r *otpRepository) DeleteByEmail(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, otpKey(email)).Err(); err != nil {
		return fmt.Errorf("failed to delete otps: %w: %w", models.ErrPersistence, err)
	}
	return nil
}

func (r *otpRepository) FindLatestByEmail(ctx context.Context, email string) (*models.OTPChallenge, error) {
	data, err := r.client.Get(ctx, otpKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get otp: %w: %w", models.ErrPersistence, err)
	}

	var challenge models.OTPChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("failed to decode otp: %w: %w", models.ErrPersistence, err)
	}
	return &challenge, nil
}

func (r *otpRepository) Consume(ctx context.Context, challenge *models.OTPChallenge) (bool, error) {
	n, err := deleteIfCurrent.Run(ctx, r.client, []string{otpKey(challenge.Email)}, challenge.ID.Hex()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w: %w", models.ErrPersistence, err)
	}
	return n == 1, nil
}

func (r *otpRepository) Delete(ctx context.Context, challenge *models.OTPChallenge) error {
	if _, err := r.Consume(ctx, challenge); err != nil {
		return fmt.Errorf("failed to delete otp: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: keys carry their own TTL. Verification removes an
// expired key it reads during the grace window.
func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
