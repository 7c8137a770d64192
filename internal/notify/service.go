package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/briefing-platform/internal/briefing"
	"github.com/wolfman30/briefing-platform/pkg/logging"
)

// Service e-mails operators when a client finishes a briefing.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates a notification service. A nil sender or an empty
// recipient list turns notifications off.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		recipients: recipients,
		logger:     logger,
	}
}

// BriefingCompleted sends the answer summary to the configured recipients.
func (s *Service) BriefingCompleted(ctx context.Context, evt briefing.Completed) error {
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: email not configured, skipping completion notice")
		return nil
	}
	text, htmlBody := renderSummary(evt)
	err := s.email.Send(ctx, EmailMessage{
		To:      s.recipients,
		Subject: fmt.Sprintf("Briefing concluído: %s", clientLabel(evt.Client)),
		Text:    text,
		HTML:    htmlBody,
		Tags: map[string]string{
			"briefing_id": evt.Briefing.ID.String(),
			"tenant_id":   evt.Client.TenantID.String(),
		},
	})
	if err != nil {
		s.logger.Warn("notify: completion email failed", "briefing_id", evt.Briefing.ID, "error", err)
		return fmt.Errorf("notify: completion email: %w", err)
	}
	return nil
}

func clientLabel(c briefing.Client) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return c.Address
}

func renderSummary(evt briefing.Completed) (string, string) {
	var text, htm strings.Builder
	fmt.Fprintf(&text, "Cliente: %s\nTelefone: %s\nBriefing: %s\n\n", clientLabel(evt.Client), evt.Client.Address, evt.Briefing.ID)
	fmt.Fprintf(&htm, "<p><strong>Cliente:</strong> %s<br><strong>Telefone:</strong> %s</p><ol>",
		html.EscapeString(clientLabel(evt.Client)), html.EscapeString(evt.Client.Address))

	for _, q := range evt.Revision.Questions {
		answer, ok := evt.Briefing.Answers[q.Order]
		if !ok {
			answer = "(sem resposta)"
		}
		fmt.Fprintf(&text, "%d. %s\n   %s\n", q.Order, q.Prompt, answer)
		fmt.Fprintf(&htm, "<li><p>%s</p><p><em>%s</em></p></li>", html.EscapeString(q.Prompt), html.EscapeString(answer))
	}
	htm.WriteString("</ol>")

	m := evt.Metrics
	fmt.Fprintf(&text, "\nRespondidas: %d de %d (%.2f%%)\nDuração: %ds\n", m.Answered, m.Total, m.CompletionRate, m.DurationSeconds)
	fmt.Fprintf(&htm, "<p>Respondidas: %d de %d (%.2f%%)</p>", m.Answered, m.Total, m.CompletionRate)
	return text.String(), htm.String()
}
