package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referr/internal/models"
	"referr/internal/observability"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"
	"referr/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthService interface {
	// RequestOTP replaces any outstanding challenge for the address with a
	// fresh one and mails it.
	RequestOTP(ctx context.Context, request *RequestOTPRequest) (*OTPResponse, error)
	// VerifyOTP consumes the challenge, signs the user up on first login and
	// opens a session.
	VerifyOTP(ctx context.Context, request *VerifyOTPRequest) (*AuthResponse, error)
	Logout(ctx context.Context, userID *primitive.ObjectID)
	ValidateSession(ctx context.Context, token string) (*utils.SessionClaims, error)
}

type RequestOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type VerifyOTPRequest struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	OTP        string `json:"otp" validate:"required,otp"`
	ReferredBy string `json:"referred_by" validate:"max=64"`
}

type OTPResponse struct {
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expires_in"`
	Length    int    `json:"length"`
}

type AuthResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"-"`
	ExpiresAt time.Time    `json:"expires_at"`
	IsNewUser bool         `json:"is_new_user"`
}

type AuthSettings struct {
	JWTSecret  string
	SessionTTL time.Duration
	OTPExpiry  time.Duration
}

type authService struct {
	userRepo  interfaces.UserRepository
	otpRepo   interfaces.OTPRepository
	referrals ReferralService
	codes     *CodeGenerator
	mailer    OTPMailer
	settings  AuthSettings
	metrics   *observability.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewAuthService(
	userRepo interfaces.UserRepository,
	otpRepo interfaces.OTPRepository,
	referrals ReferralService,
	codes *CodeGenerator,
	mailer OTPMailer,
	settings AuthSettings,
	metrics *observability.Metrics,
	logger *logger.Logger,
) AuthService {
	if settings.SessionTTL <= 0 {
		settings.SessionTTL = utils.SessionTTL
	}
	if settings.OTPExpiry <= 0 {
		settings.OTPExpiry = utils.OTPExpiry
	}

	return &authService{
		userRepo:  userRepo,
		otpRepo:   otpRepo,
		referrals: referrals,
		codes:     codes,
		mailer:    mailer,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *authService) RequestOTP(ctx context.Context, request *RequestOTPRequest) (*OTPResponse, error) {
	request.Email = utils.NormalizeEmail(request.Email)
	if err := utils.ValidateStruct(request); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	email := request.Email
	log := s.logger.WithContext(ctx)

	// A new challenge always invalidates the previous one.
	if err := s.otpRepo.DeleteByEmail(ctx, email); err != nil {
		s.metrics.OTPRequested(observability.ResultError)
		return nil, fmt.Errorf("failed to clear previous otp: %w", err)
	}

	issued := models.IssueChallenge(email, utils.GenerateOTP(), s.now(), s.settings.OTPExpiry)
	if err := s.otpRepo.Create(ctx, issued.Challenge); err != nil {
		s.metrics.OTPRequested(observability.ResultError)
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, issued.Challenge.Code, s.settings.OTPExpiry); err != nil {
		// Don't leave behind a challenge the user never received.
		if derr := s.otpRepo.Delete(ctx, issued.Challenge); derr != nil {
			log.WithError(derr).Warn("Failed to remove undelivered otp")
		}
		s.metrics.OTPRequested(observability.ResultError)
		log.WithError(err).LogAuthEvent(utils.EventOTPRequested, utils.MaskEmail(email), false, nil)
		return nil, fmt.Errorf("%w: %w", models.ErrDispatchFailure, err)
	}

	s.metrics.OTPRequested(observability.ResultSuccess)
	log.LogAuthEvent(utils.EventOTPRequested, utils.MaskEmail(email), true, nil)

	return &OTPResponse{
		Message:   "OTP sent successfully",
		ExpiresIn: int64(s.settings.OTPExpiry / time.Second),
		Length:    utils.OTPLength,
	}, nil
}

func (s *authService) VerifyOTP(ctx context.Context, request *VerifyOTPRequest) (*AuthResponse, error) {
	request.Email = utils.NormalizeEmail(request.Email)
	if err := utils.ValidateStruct(request); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	email := request.Email
	log := s.logger.WithContext(ctx)
	now := s.now()

	challenge, err := s.otpRepo.FindLatestByEmail(ctx, email)
	if err != nil {
		s.metrics.OTPVerified(observability.ResultError)
		return nil, fmt.Errorf("failed to get otp: %w", err)
	}

	state := models.StateFromChallenge(challenge)
	if err := models.CheckChallenge(state, request.OTP, now); err != nil {
		if errors.Is(err, models.ErrCodeExpired) {
			if derr := s.otpRepo.Delete(ctx, challenge); derr != nil {
				log.WithError(derr).Warn("Failed to remove expired otp")
			}
			s.metrics.OTPVerified(observability.ResultExpired)
		} else {
			s.metrics.OTPVerified(observability.ResultInvalidCode)
		}
		log.LogAuthEvent(utils.EventOTPVerified, utils.MaskEmail(email), false, map[string]interface{}{"reason": err.Error()})
		return nil, err
	}

	// Only the caller that actually removes the challenge may proceed.
	consumed, err := s.otpRepo.Consume(ctx, challenge)
	if err != nil {
		s.metrics.OTPVerified(observability.ResultError)
		return nil, fmt.Errorf("failed to consume otp: %w", err)
	}
	if !consumed {
		s.metrics.OTPVerified(observability.ResultInvalidCode)
		log.LogAuthEvent(utils.EventOTPVerified, utils.MaskEmail(email), false, map[string]interface{}{"reason": "already consumed"})
		return nil, models.ErrInvalidCode
	}

	user, isNew, err := s.resolveIdentity(ctx, email, request.ReferredBy)
	if err != nil {
		s.metrics.OTPVerified(observability.ResultError)
		return nil, err
	}
	verified := models.Verify(user, isNew)

	token, expiresAt, err := utils.GenerateSessionToken(user.ID, user.Email, s.settings.JWTSecret, s.settings.SessionTTL, now)
	if err != nil {
		s.metrics.OTPVerified(observability.ResultError)
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	session := models.Activate(verified, token, expiresAt)

	s.metrics.OTPVerified(observability.ResultSuccess)
	log.WithUserID(user.ID).LogAuthEvent(utils.EventUserLogin, utils.MaskEmail(email), true, map[string]interface{}{"new_user": isNew})

	return &AuthResponse{
		User:      session.User,
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		IsNewUser: session.IsNewUser,
	}, nil
}

// resolveIdentity returns the user for email, creating it on first login. A
// signup is credited only for users created by this call.
func (s *authService) resolveIdentity(ctx context.Context, email, referredBy string) (*models.User, bool, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}
	if user != nil {
		return user, false, nil
	}

	user, created, err := s.createUser(ctx, email, referredBy)
	if err != nil || !created {
		return user, false, err
	}

	s.logger.WithContext(ctx).WithUserID(user.ID).LogAuthEvent(utils.EventUserSignedUp, utils.MaskEmail(email), true, nil)

	if referredBy != "" {
		if _, err := s.referrals.RegisterSignup(ctx, referredBy); err != nil {
			return nil, false, fmt.Errorf("failed to credit signup: %w", err)
		}
	}

	return user, true, nil
}

// createUser inserts a new identity. On a unique index conflict it returns
// the user a concurrent login created for the same address, or retries once
// with a fresh code if the referral code collided instead.
func (s *authService) createUser(ctx context.Context, email, referredBy string) (*models.User, bool, error) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var code string
		code, err = s.codes.NewReferralCode(ctx)
		if err != nil {
			return nil, false, err
		}

		user := &models.User{
			Email:        email,
			ReferralCode: code,
			ReferredBy:   referredBy,
		}
		if err = s.userRepo.Create(ctx, user); err == nil {
			return user, true, nil
		}
		if !errors.Is(err, models.ErrConflict) {
			return nil, false, fmt.Errorf("failed to create user: %w", err)
		}

		existing, gerr := s.userRepo.GetByEmail(ctx, email)
		if gerr != nil {
			return nil, false, fmt.Errorf("failed to get user: %w", gerr)
		}
		if existing != nil {
			return existing, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to create user: %w", err)
}

func (s *authService) Logout(ctx context.Context, userID *primitive.ObjectID) {
	log := s.logger.WithContext(ctx).WithField("event", utils.EventUserLogout)
	if userID != nil {
		log = log.WithUserID(*userID)
	}
	log.Info("User logged out")
}

func (s *authService) ValidateSession(ctx context.Context, token string) (*utils.SessionClaims, error) {
	return utils.ValidateSessionToken(token, s.settings.JWTSecret)
}
