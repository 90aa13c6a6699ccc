package services

import (
	"context"
	"fmt"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"
)

// CodeGenerator hands out referral codes that no existing user holds.
type CodeGenerator struct {
	userRepo    interfaces.UserRepository
	maxAttempts int
	generate    func() string
}

func NewCodeGenerator(userRepo interfaces.UserRepository, maxAttempts int) *CodeGenerator {
	if maxAttempts <= 0 {
		maxAttempts = utils.ReferralCodeMaxAttempts
	}
	return &CodeGenerator{
		userRepo:    userRepo,
		maxAttempts: maxAttempts,
		generate:    utils.GenerateReferralCode,
	}
}

// NewReferralCode draws codes until one is unused. The unique index on
// users.referral_code still backs this up against a concurrent insert.
func (g *CodeGenerator) NewReferralCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		code := g.generate()

		exists, err := g.userRepo.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check referral code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("no free referral code after %d attempts: %w", g.maxAttempts, models.ErrExhaustedKeyspace)
}
