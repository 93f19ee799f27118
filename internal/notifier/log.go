package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of delivering them. Used
// when no SMTP relay is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Send(_ context.Context, recipient, subject, htmlBody string) error {
	logger := n.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Info("mail delivery skipped, no SMTP relay configured",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)),
	)
	return nil
}
