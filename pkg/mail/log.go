package mail

import (
	"context"

	"referr/pkg/logger"
)

// LogSender writes messages to the log instead of sending them. Local
// development only: the passcode ends up in the log.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Text,
	}).Info("Mail delivery skipped")
	return nil
}
