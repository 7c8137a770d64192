package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/briefing-platform/internal/config"
	"github.com/wolfman30/briefing-platform/internal/whatsapp"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// BuildWhatsAppClient creates the outbound WhatsApp client. Both the phone
// number id and access token are required.
func BuildWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger) (*whatsapp.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: missing config")
	}
	if strings.TrimSpace(cfg.WhatsAppPhoneNumberID) == "" || strings.TrimSpace(cfg.WhatsAppAccessToken) == "" {
		return nil, fmt.Errorf("bootstrap: WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_ACCESS_TOKEN are required")
	}
	return whatsapp.New(whatsapp.Config{
		BaseURL:       cfg.WhatsAppAPIBaseURL,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
		AppSecret:     cfg.WhatsAppAppSecret,
		Timeout:       cfg.WhatsAppTimeout,
		MaxRetries:    cfg.WhatsAppMaxRetries,
		Logger:        logger,
	})
}
