package services

import (
	"context"
	"fmt"

	"referr/internal/models"
	"referr/internal/observability"
	"referr/internal/repositories/interfaces"
	"referr/internal/utils"
	"referr/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatsNotifier pushes events to a user's live connections. The websocket
// handler satisfies it.
type StatsNotifier interface {
	SendUserNotification(userID primitive.ObjectID, notificationType string, data interface{})
}

const NotificationStatsUpdated = "stats_updated"

type ReferralService interface {
	// RegisterClick counts a click on code. Unknown codes are dropped and
	// (nil, nil) is returned; no record is created for them.
	RegisterClick(ctx context.Context, code string) (*models.ReferralStat, error)
	// RegisterSignup credits the owner of referrerCode with a signup,
	// creating its record if needed. Unknown codes return (nil, nil).
	RegisterSignup(ctx context.Context, referrerCode string) (*models.ReferralStat, error)
	// RegisterConversion credits whoever referred userID with a conversion
	// and one reward unit. No referrer, or an unknown one, returns (nil, nil).
	RegisterConversion(ctx context.Context, userID primitive.ObjectID) (*models.ReferralStat, error)

	GetStats(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error)
	GetOrCreateStats(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error)
	GetLeaderboard(ctx context.Context, page, pageSize int, viewerID primitive.ObjectID) (*models.Leaderboard, error)
}

type ReferralSettings struct {
	RewardUnit  float64
	MaxPageSize int
}

type referralService struct {
	userRepo interfaces.UserRepository
	statRepo interfaces.ReferralStatRepository
	notifier StatsNotifier
	settings ReferralSettings
	metrics  *observability.Metrics
	logger   *logger.Logger
}

func NewReferralService(
	userRepo interfaces.UserRepository,
	statRepo interfaces.ReferralStatRepository,
	notifier StatsNotifier,
	settings ReferralSettings,
	metrics *observability.Metrics,
	logger *logger.Logger,
) ReferralService {
	if settings.RewardUnit <= 0 {
		settings.RewardUnit = utils.DefaultReferralReward
	}
	if settings.MaxPageSize <= 0 {
		settings.MaxPageSize = utils.MaxPageSize
	}

	return &referralService{
		userRepo: userRepo,
		statRepo: statRepo,
		notifier: notifier,
		settings: settings,
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *referralService) RegisterClick(ctx context.Context, code string) (*models.ReferralStat, error) {
	if code == "" {
		return nil, fmt.Errorf("referral code is required: %w", models.ErrValidation)
	}

	stat, err := s.statRepo.IncrementClicks(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to register click: %w", err)
	}
	if stat == nil {
		s.logger.WithContext(ctx).WithField("referral_code", code).Debug("Click for unknown referral code dropped")
		return nil, nil
	}

	s.recorded(ctx, stat, utils.EventReferralClick, nil)
	return stat, nil
}

func (s *referralService) RegisterSignup(ctx context.Context, referrerCode string) (*models.ReferralStat, error) {
	if referrerCode == "" {
		return nil, nil
	}

	referrer, err := s.userRepo.GetByReferralCode(ctx, referrerCode)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve referrer: %w", err)
	}
	if referrer == nil {
		return nil, nil
	}

	stat, err := s.statRepo.IncrementSignups(ctx, referrer.ID, referrer.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("failed to register signup: %w", err)
	}

	s.recorded(ctx, stat, utils.EventReferralSignup, nil)
	return stat, nil
}

func (s *referralService) RegisterConversion(ctx context.Context, userID primitive.ObjectID) (*models.ReferralStat, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || user.ReferredBy == "" {
		return nil, nil
	}

	referrer, err := s.userRepo.GetByReferralCode(ctx, user.ReferredBy)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve referrer: %w", err)
	}
	if referrer == nil {
		return nil, nil
	}

	stat, err := s.statRepo.IncrementConversions(ctx, referrer.ID, referrer.ReferralCode, s.settings.RewardUnit)
	if err != nil {
		return nil, fmt.Errorf("failed to register conversion: %w", err)
	}

	s.metrics.ReferralEarned(s.settings.RewardUnit)
	s.recorded(ctx, stat, utils.EventReferralConvert, map[string]interface{}{
		"referred_user_id": userID.Hex(),
		"reward":           s.settings.RewardUnit,
	})
	return stat, nil
}

func (s *referralService) GetStats(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error) {
	stat, err := s.statRepo.GetByReferrer(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral stats: %w", err)
	}
	return stat, nil
}

// GetOrCreateStats backs the dashboard: a referrer who has never been
// credited still gets a zeroed record, created carrying their code so later
// clicks can find it.
func (s *referralService) GetOrCreateStats(ctx context.Context, referrerID primitive.ObjectID) (*models.ReferralStat, error) {
	stat, err := s.GetStats(ctx, referrerID)
	if err != nil || stat != nil {
		return stat, err
	}

	user, err := s.userRepo.GetByID(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", referrerID.Hex(), models.ErrNotFound)
	}

	stat, err = s.statRepo.EnsureForReferrer(ctx, user.ID, user.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("failed to create referral stats: %w", err)
	}
	return stat, nil
}

func (s *referralService) GetLeaderboard(ctx context.Context, page, pageSize int, viewerID primitive.ObjectID) (*models.Leaderboard, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = utils.DefaultPageSize
	}
	if pageSize > s.settings.MaxPageSize {
		pageSize = s.settings.MaxPageSize
	}

	total, err := s.statRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count leaderboard: %w", err)
	}

	params := &utils.PaginationParams{Page: page, PageSize: pageSize}
	board := &models.Leaderboard{
		Page:       params.Page,
		TotalPages: utils.TotalPages(total, params.GetLimit()),
		Rows:       []*models.LeaderboardRow{},
	}

	skip := int64(params.GetSkip())
	if skip >= total {
		return board, nil
	}

	entries, err := s.statRepo.Leaderboard(ctx, skip, int64(params.GetLimit()))
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}

	for i, entry := range entries {
		name := utils.UnknownReferrerName
		if entry.ReferrerName != nil && *entry.ReferrerName != "" {
			name = *entry.ReferrerName
		}

		board.Rows = append(board.Rows, &models.LeaderboardRow{
			Rank:        int(skip) + i + 1,
			FullName:    name,
			Conversions: entry.Conversions,
			IsViewer:    entry.ReferrerID == viewerID,
		})
	}

	return board, nil
}

func (s *referralService) recorded(ctx context.Context, stat *models.ReferralStat, event string, details map[string]interface{}) {
	s.metrics.ReferralEvent(event)
	s.logger.WithContext(ctx).LogAttributionEvent(stat.ReferrerID, event, details)

	if s.notifier != nil {
		s.notifier.SendUserNotification(stat.ReferrerID, NotificationStatsUpdated, stat)
	}
}
