package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/internal/notify"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

// BuildEmailSender selects the care-team email provider. Misconfigured providers
// fall back to the stub sender so alerts are at least logged.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.AlertEmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.AlertFromEmail,
			FromName:  cfg.AlertFromName,
		}, logger)
		if sender != nil {
			logger.Info("crisis alerts via sendgrid", "to", cfg.AlertEmailTo)
			return sender, nil
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; alerts will only be logged")
	case "ses":
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("crisis alerts via ses", "to", cfg.AlertEmailTo)
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.AlertFromEmail,
			FromName:  cfg.AlertFromName,
		}, logger), nil
	case "", "stub":
	default:
		logger.Warn("unknown alert email provider; alerts will only be logged", "provider", cfg.AlertEmailProvider)
	}
	return notify.NewStubEmailSender(logger), nil
}
