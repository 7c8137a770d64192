package processor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/briefing-platform/internal/briefing"
)

func greetingName(c briefing.Client) string {
	if name := c.FirstName(); name != "" {
		return name
	}
	return "tudo bem"
}

func completionMessage(c briefing.Client) string {
	return fmt.Sprintf("Obrigado, %s! ✅\n\nSeu briefing foi concluído com sucesso. Nossa equipe irá analisar suas respostas e entrar em contato em breve.", greetingName(c))
}

func noActiveBriefingMessage(c briefing.Client) string {
	return fmt.Sprintf("Olá, %s! 👋\n\nNo momento, você não tem um briefing ativo. Entre em contato com seu arquiteto para iniciar um novo briefing.", greetingName(c))
}

const unknownClientMessage = "Olá! 👋\n\nNão encontramos um cadastro para este número. Entre em contato com seu arquiteto para iniciar um briefing."

func welcomeMessage(c briefing.Client, rev *briefing.Revision, q briefing.Question) string {
	return fmt.Sprintf("Olá, %s! 👋\n\nVamos começar seu briefing. Responda cada pergunta com uma mensagem. Você pode enviar \"pular\" em perguntas opcionais, \"voltar\" para a anterior ou \"não sei\".\n\n%s",
		greetingName(c), questionPrompt(rev, q))
}

// questionPrompt renders q with its position in the revision.
func questionPrompt(rev *briefing.Revision, q briefing.Question) string {
	position := 0
	for i, candidate := range rev.Questions {
		if candidate.Order == q.Order {
			position = i + 1
			break
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Pergunta %d de %d*\n\n%s", position, rev.Len(), q.Prompt)
	if q.Type == briefing.TypeMultipleChoice && len(q.Options) > 0 {
		b.WriteString("\n\nOpções:")
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
	}
	if !q.Required {
		b.WriteString("\n\n_(Opcional: envie \"pular\" para seguir)_")
	}
	return b.String()
}

// rejectionMessage explains why an answer or command was refused.
func rejectionMessage(err error) string {
	var verr *briefing.ValidationError
	switch {
	case errors.As(err, &verr):
		switch verr.Reason {
		case briefing.ReasonNotANumber:
			return "Por favor, responda apenas com números (ex.: 120000)."
		case briefing.ReasonInvalidOption:
			return fmt.Sprintf("Por favor, escolha uma das opções: %s.", strings.Join(verr.Options, ", "))
		default:
			return "Por favor, envie uma resposta para esta pergunta."
		}
	case errors.Is(err, briefing.ErrCannotSkipRequired):
		return "Esta pergunta é obrigatória e não pode ser pulada. Se não souber a resposta, envie \"não sei\"."
	case errors.Is(err, briefing.ErrCannotGoBack):
		return "Você já está na primeira pergunta."
	default:
		return "Não foi possível processar sua resposta."
	}
}
