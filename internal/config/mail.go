package config

import "fmt"

const (
	MailProviderResend = "resend"
	MailProviderSMTP   = "smtp"
	MailProviderLog    = "log"
)

type MailConfig struct {
	Provider   string        `yaml:"provider"`
	FromEmail  string        `yaml:"from_email"`
	FromName   string        `yaml:"from_name"`
	SiteURL    string        `yaml:"site_url"`
	SupportURL string        `yaml:"support_url"`
	PrivacyURL string        `yaml:"privacy_url"`
	Resend     *ResendConfig `yaml:"resend"`
	SMTP       *SMTPConfig   `yaml:"smtp"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// From renders the RFC 5322 sender, e.g. "Referr <noreply@referr.app>".
func (m *MailConfig) From() string {
	if m.FromName == "" {
		return m.FromEmail
	}
	return fmt.Sprintf("%s <%s>", m.FromName, m.FromEmail)
}

func (m *MailConfig) Validate() error {
	switch m.Provider {
	case MailProviderResend:
		if m.Resend.APIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required for mail provider %q", m.Provider)
		}
	case MailProviderSMTP:
		if m.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required for mail provider %q", m.Provider)
		}
	case MailProviderLog:
	default:
		return fmt.Errorf("unsupported MAIL_PROVIDER %q", m.Provider)
	}
	return nil
}

func loadMailConfig() *MailConfig {
	return &MailConfig{
		Provider:   getEnv("MAIL_PROVIDER", MailProviderLog),
		FromEmail:  getEnv("MAIL_FROM_EMAIL", "noreply@referr.app"),
		FromName:   getEnv("MAIL_FROM_NAME", "Referr"),
		SiteURL:    getEnv("SITE_URL", "http://localhost:3000"),
		SupportURL: getEnv("SUPPORT_URL", ""),
		PrivacyURL: getEnv("PRIVACY_POLICY_URL", ""),
		Resend: &ResendConfig{
			APIKey: getEnv("RESEND_API_KEY", ""),
		},
		SMTP: &SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},
	}
}
