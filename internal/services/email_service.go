package services

import (
	"context"
	"time"

	"referr/internal/utils"
	"referr/pkg/logger"
	"referr/pkg/mail"
)

// OTPMailer delivers passcodes to users.
type OTPMailer interface {
	SendOTP(ctx context.Context, email, code string, validFor time.Duration) error
}

type EmailSettings struct {
	AppName    string
	SiteURL    string
	SupportURL string
	PrivacyURL string
}

type emailService struct {
	sender   mail.Sender
	settings EmailSettings
	logger   *logger.Logger
}

func NewEmailService(sender mail.Sender, settings EmailSettings, logger *logger.Logger) OTPMailer {
	return &emailService{
		sender:   sender,
		settings: settings,
		logger:   logger,
	}
}

func (s *emailService) SendOTP(ctx context.Context, email, code string, validFor time.Duration) error {
	msg, err := mail.NewOTPMessage(mail.OTPEmailData{
		AppName:    s.settings.AppName,
		Email:      email,
		Code:       code,
		ExpiresIn:  validFor,
		SiteURL:    s.settings.SiteURL,
		SupportURL: s.settings.SupportURL,
		PrivacyURL: s.settings.PrivacyURL,
	})
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithField("email", utils.MaskEmail(email)).Debug("OTP email sent")
	return nil
}
