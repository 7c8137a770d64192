package bootstrap

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/wolfman30/briefing-platform/internal/analytics"
	"github.com/wolfman30/briefing-platform/internal/archive"
	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/notify"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// CompletionDeps are the optional backends fed by briefing completion.
type CompletionDeps struct {
	Analytics *analytics.Recorder
	AWS       *aws.Config
}

// BuildCompletionHooks assembles the fan-out run after a briefing completes.
// Each hook is registered only when its backend is configured.
func BuildCompletionHooks(cfg *appconfig.Config, deps CompletionDeps, logger *logging.Logger) *analytics.Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := analytics.NewDispatcher(logger)
	if deps.Analytics != nil {
		d.Register("analytics", deps.Analytics)
	}
	if cfg == nil {
		return d
	}

	if email := BuildEmailSender(cfg, deps.AWS, logger); email != nil && len(cfg.NotifyEmails) > 0 {
		d.Register("notify", notify.NewService(email, cfg.NotifyEmails, logger))
	} else {
		logger.Info("completion e-mail disabled", "provider", cfg.EmailProvider, "recipients", len(cfg.NotifyEmails))
	}

	if cfg.ArchiveBucket != "" && deps.AWS != nil {
		client := s3.NewFromConfig(*deps.AWS, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		d.Register("archive", archive.NewStore(client, cfg.ArchiveBucket, logger))
	}
	return d
}

// BuildEmailSender selects the configured provider. It returns nil when the
// provider lacks credentials.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		if awsCfg == nil {
			return nil
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	}
}
