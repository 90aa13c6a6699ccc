package models

import (
	"crypto/subtle"
	"time"
)

// AuthState is the authentication state of an e-mail address. It is never
// persisted; services rebuild it from the OTP and user stores on every call.
//
//	Unauthenticated -> ChallengeIssued -> Verified -> SessionActive
type AuthState interface {
	authState()
}

type Unauthenticated struct{}

type ChallengeIssued struct {
	Challenge *OTPChallenge
}

type Verified struct {
	User      *User
	IsNewUser bool
}

type SessionActive struct {
	User      *User
	Token     string
	ExpiresAt time.Time
	IsNewUser bool
}

func (Unauthenticated) authState() {}
func (ChallengeIssued) authState() {}
func (Verified) authState()        {}
func (SessionActive) authState()   {}

// StateFromChallenge rebuilds the state of an address from its stored challenge.
func StateFromChallenge(challenge *OTPChallenge) AuthState {
	if challenge == nil {
		return Unauthenticated{}
	}
	return ChallengeIssued{Challenge: challenge}
}

// IssueChallenge moves any state to ChallengeIssued. The caller is expected to
// drop every earlier challenge for the address before persisting this one.
func IssueChallenge(email, code string, now time.Time, ttl time.Duration) ChallengeIssued {
	return ChallengeIssued{Challenge: &OTPChallenge{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}}
}

// CheckChallenge decides whether submitted may consume the challenge held by
// state. The code is compared before expiry so that a wrong code never reveals
// whether a challenge has lapsed.
func CheckChallenge(state AuthState, submitted string, now time.Time) error {
	issued, ok := state.(ChallengeIssued)
	if !ok || issued.Challenge == nil {
		return ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(issued.Challenge.Code), []byte(submitted)) != 1 {
		return ErrInvalidCode
	}
	if issued.Challenge.IsExpired(now) {
		return ErrCodeExpired
	}
	return nil
}

func Verify(user *User, isNewUser bool) Verified {
	return Verified{User: user, IsNewUser: isNewUser}
}

func Activate(v Verified, token string, expiresAt time.Time) SessionActive {
	return SessionActive{
		User:      v.User,
		Token:     token,
		ExpiresAt: expiresAt,
		IsNewUser: v.IsNewUser,
	}
}
