package handlers

import (
	"net/http"
	"time"

	"referr/internal/middleware"
	"referr/internal/services"
	"referr/internal/utils"
	"referr/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CookieSettings describes the session cookie. It is always HttpOnly and
// SameSite=Strict.
type CookieSettings struct {
	Name   string
	MaxAge time.Duration
	Domain string
	Secure bool
}

type AuthHandler struct {
	authService services.AuthService
	cookie      CookieSettings
	logger      *logger.Logger
}

func NewAuthHandler(authService services.AuthService, cookie CookieSettings, logger *logger.Logger) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = utils.SessionCookieName
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = utils.SessionCookieMaxAge
	}

	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		logger:      logger,
	}
}

// RequestOTP mails a fresh passcode to the given address
func (h *AuthHandler) RequestOTP(c *gin.Context) {
	var request services.RequestOTPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	response, err := h.authService.RequestOTP(c.Request.Context(), &request)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SuccessResponse(c, response.Message, response)
}

// VerifyOTP exchanges a passcode for a session cookie
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var request services.VerifyOTPRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	response, err := h.authService.VerifyOTP(c.Request.Context(), &request)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setSessionCookie(c, response.Token, int(h.cookie.MaxAge/time.Second))

	message := "Login successful"
	if response.IsNewUser {
		message = "Account created successfully"
	}
	utils.SuccessResponse(c, message, response)
}

// Logout clears the session cookie. It never fails, even without a session.
func (h *AuthHandler) Logout(c *gin.Context) {
	var userID *primitive.ObjectID
	if token, err := c.Cookie(h.cookie.Name); err == nil && token != "" {
		if claims, err := h.authService.ValidateSession(c.Request.Context(), token); err == nil {
			userID = &claims.UserID
		}
	} else if id, ok := middleware.GetUserID(c); ok {
		userID = &id
	}

	h.authService.Logout(c.Request.Context(), userID)
	h.setSessionCookie(c, "", -1)

	utils.SuccessResponse(c, "Logged out successfully", nil)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
