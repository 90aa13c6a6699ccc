package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFromChallenge(t *testing.T) {
	assert.IsType(t, Unauthenticated{}, StateFromChallenge(nil))

	c := &OTPChallenge{Email: "a@b.co", Code: "123456"}
	state := StateFromChallenge(c)
	issued, ok := state.(ChallengeIssued)
	require.True(t, ok)
	assert.Same(t, c, issued.Challenge)
}

func TestIssueChallenge(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	issued := IssueChallenge("a@b.co", "654321", now, 15*time.Minute)

	require.NotNil(t, issued.Challenge)
	assert.Equal(t, "a@b.co", issued.Challenge.Email)
	assert.Equal(t, "654321", issued.Challenge.Code)
	assert.Equal(t, now.Add(15*time.Minute), issued.Challenge.ExpiresAt)
}

func TestCheckChallenge(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	live := ChallengeIssued{Challenge: &OTPChallenge{Code: "111111", ExpiresAt: now.Add(time.Minute)}}
	lapsed := ChallengeIssued{Challenge: &OTPChallenge{Code: "111111", ExpiresAt: now.Add(-time.Minute)}}

	tests := []struct {
		name      string
		state     AuthState
		submitted string
		want      error
	}{
		{"no challenge", Unauthenticated{}, "111111", ErrInvalidCode},
		{"nil challenge", ChallengeIssued{}, "111111", ErrInvalidCode},
		{"wrong code", live, "222222", ErrInvalidCode},
		{"wrong code on lapsed challenge", lapsed, "222222", ErrInvalidCode},
		{"lapsed", lapsed, "111111", ErrCodeExpired},
		{"ok", live, "111111", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckChallenge(tt.state, tt.submitted, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestActivate(t *testing.T) {
	u := &User{Email: "a@b.co"}
	exp := time.Now().Add(time.Hour)

	s := Activate(Verify(u, true), "tok", exp)
	assert.Same(t, u, s.User)
	assert.Equal(t, "tok", s.Token)
	assert.Equal(t, exp, s.ExpiresAt)
	assert.True(t, s.IsNewUser)
}
