package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var otpTemplate = template.Must(template.ParseFS(templateFS, "templates/otp.html"))

type OTPEmailData struct {
	AppName    string
	Email      string
	Code       string
	ExpiresIn  time.Duration
	SiteURL    string
	SupportURL string
	PrivacyURL string
}

func (d OTPEmailData) ExpiresInMinutes() int {
	return int(d.ExpiresIn / time.Minute)
}

// NewOTPMessage renders the passcode e-mail for data.Email.
func NewOTPMessage(data OTPEmailData) (*Message, error) {
	var html bytes.Buffer
	if err := otpTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render otp email: %w", err)
	}

	return &Message{
		To:      data.Email,
		Subject: fmt.Sprintf("Your OTP Code for %s", data.AppName),
		HTML:    html.String(),
		Text: fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes.",
			data.AppName, data.Code, data.ExpiresInMinutes()),
	}, nil
}
