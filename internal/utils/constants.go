package utils

import "time"

const (
	AppName    = "Referr"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 10
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	SessionTTL          = 14 * 24 * time.Hour
	SessionCookieName   = "token"
	SessionCookieMaxAge = 15 * 24 * time.Hour
	OTPLength           = 6
	OTPExpiry           = 15 * time.Minute

	// Referral
	DefaultReferralReward   = 10.0
	ReferralCodeLength      = 8
	ReferralCodeMaxAttempts = 10
	UnknownReferrerName     = "Unknown User"
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrTokenExpired     = "token has expired"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheUserPrefix      = "user:"
	CacheUserEmailPrefix = "user_email:"
	CacheOTPPrefix       = "otp:"
)

// Event Types
const (
	EventOTPRequested    = "otp_requested"
	EventOTPVerified     = "otp_verified"
	EventUserSignedUp    = "user_signed_up"
	EventUserLogin       = "user_login"
	EventUserLogout      = "user_logout"
	EventUserOnboarded   = "user_onboarded"
	EventReferralClick   = "referral_click"
	EventReferralSignup  = "referral_signup"
	EventReferralConvert = "referral_conversion"
)
