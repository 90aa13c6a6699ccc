package handlers

import (
	"referr/internal/middleware"
	"referr/internal/services"
	"referr/internal/utils"
	"referr/pkg/logger"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralService services.ReferralService
	logger          *logger.Logger
}

func NewReferralHandler(referralService services.ReferralService, logger *logger.Logger) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
		logger:          logger,
	}
}

type ClickRequest struct {
	ReferralCode string `json:"referral_code" binding:"required" validate:"referral_code"`
}

// RegisterClick counts a visit through a referral link. Unknown codes are
// accepted and ignored so that codes cannot be guessed. A code that could
// never have been issued gets the same answer without touching the store.
func (h *ReferralHandler) RegisterClick(c *gin.Context) {
	var request ClickRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "referral_code is required")
		return
	}
	if err := utils.ValidateStruct(&request); err != nil {
		h.logger.WithField("referral_code", request.ReferralCode).Debug("Malformed referral code dropped")
		utils.SuccessResponse(c, "Click registered", nil)
		return
	}

	if _, err := h.referralService.RegisterClick(c.Request.Context(), request.ReferralCode); err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Click registered", nil)
}

// GetMyStats returns the caller's counters, creating a zeroed record on
// first view.
func (h *ReferralHandler) GetMyStats(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	stats, err := h.referralService.GetOrCreateStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Stats retrieved successfully", stats)
}

func (h *ReferralHandler) GetLeaderboard(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c)
		return
	}

	params := utils.GetPaginationParams(c)
	board, err := h.referralService.GetLeaderboard(c.Request.Context(), params.Page, params.PageSize, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, "Leaderboard retrieved successfully", board)
}
