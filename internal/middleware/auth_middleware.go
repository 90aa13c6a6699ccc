package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"referr/internal/models"
	"referr/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	LoginPath      = "/login"
	OnboardingPath = "/onboarding"

	ContextUserID = "user_id"
	ContextEmail  = "email"
	ContextUser   = "user"
)

type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*utils.SessionClaims, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// AuthRequired validates the session token from the cookie, or from a Bearer
// header for non-browser clients, and sets the user on the context.
func AuthRequired(sessions SessionValidator, cookieName string) gin.HandlerFunc {
	if cookieName == "" {
		cookieName = utils.SessionCookieName
	}

	return func(c *gin.Context) {
		tokenString := sessionToken(c, cookieName)
		if tokenString == "" {
			utils.RedirectErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", LoginPath)
			return
		}

		claims, err := sessions.ValidateSession(c.Request.Context(), tokenString)
		if err != nil {
			if utils.IsTokenExpired(err) {
				utils.RedirectErrorResponse(c, http.StatusUnauthorized, "TOKEN_EXPIRED", utils.ErrTokenExpired, LoginPath)
				return
			}
			utils.RedirectErrorResponse(c, http.StatusUnauthorized, "INVALID_TOKEN", utils.ErrInvalidToken, LoginPath)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ContextUserID, claims.UserID.Hex()))

		c.Next()
	}
}

// OnboardingRequired must run after AuthRequired. It loads the user and stops
// anyone who has not finished onboarding.
func OnboardingRequired(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			utils.RedirectErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", LoginPath)
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				// Session outlived its account.
				utils.RedirectErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Account not found", LoginPath)
				return
			}
			utils.InternalServerErrorResponse(c)
			c.Abort()
			return
		}

		if !user.HasOnboarded {
			utils.RedirectErrorResponse(c, http.StatusConflict, "ONBOARDING_REQUIRED", "Please complete onboarding first", OnboardingPath)
			return
		}

		c.Set(ContextUser, user)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return primitive.NilObjectID, false
	}
	userID, ok := value.(primitive.ObjectID)
	return userID, ok
}

func sessionToken(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		return ""
	}
	return strings.TrimSpace(tokenString)
}
