package services

import (
	"context"
	"fmt"
	"strings"

	"referr/internal/models"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"
	"referr/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserService interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// CompleteOnboarding stores the profile and credits the referrer. Calling
	// it again for an onboarded user returns the user unchanged and credits
	// nothing.
	CompleteOnboarding(ctx context.Context, id primitive.ObjectID, request *OnboardingRequest) (*models.User, error)
}

type OnboardingRequest struct {
	FullName string `json:"full_name" validate:"required,max=100"`
	State    string `json:"state" validate:"required,max=100"`
	Country  string `json:"country" validate:"required,max=100"`
}

type userService struct {
	userRepo  interfaces.UserRepository
	referrals ReferralService
	logger    *logger.Logger
}

func NewUserService(userRepo interfaces.UserRepository, referrals ReferralService, logger *logger.Logger) UserService {
	return &userService{
		userRepo:  userRepo,
		referrals: referrals,
		logger:    logger,
	}
}

func (s *userService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), models.ErrNotFound)
	}
	return user, nil
}

func (s *userService) CompleteOnboarding(ctx context.Context, id primitive.ObjectID, request *OnboardingRequest) (*models.User, error) {
	request.FullName = strings.TrimSpace(request.FullName)
	request.State = strings.TrimSpace(request.State)
	request.Country = strings.TrimSpace(request.Country)
	if err := utils.ValidateStruct(request); err != nil {
		// A repeat carries no meaningful profile; an onboarded user is
		// returned as is whatever the body holds.
		if user, lookupErr := s.userRepo.GetByID(ctx, id); lookupErr == nil && user != nil && user.HasOnboarded {
			return user, nil
		}
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	// The flag flips in a single conditional update, so of several
	// concurrent completions exactly one sees flipped == true.
	user, flipped, err := s.userRepo.CompleteOnboarding(ctx, id, &models.Profile{
		FullName: request.FullName,
		State:    request.State,
		Country:  request.Country,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete onboarding: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), models.ErrNotFound)
	}
	if !flipped {
		return user, nil
	}

	s.logger.WithContext(ctx).WithUserID(id).WithField("event", utils.EventUserOnboarded).Info("User onboarded")

	if _, err := s.referrals.RegisterConversion(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to credit conversion: %w", err)
	}

	return user, nil
}
