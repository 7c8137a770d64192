package briefing

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Command is an in-band control word typed instead of an answer.
type Command string

const (
	CommandNone     Command = ""
	CommandSkip     Command = "skip"
	CommandBack     Command = "back"
	CommandDontKnow Command = "dont_know"
)

// DontKnowAnswer is stored when the client says they do not know the answer
// to a required question.
const DontKnowAnswer = "não sei"

var commandAliases = map[string]Command{
	"pular":   CommandSkip,
	"pula":    CommandSkip,
	"skip":    CommandSkip,
	"voltar":  CommandBack,
	"volta":   CommandBack,
	"não sei": CommandDontKnow,
	"nao sei": CommandDontKnow,
	"n sei":   CommandDontKnow,
	"ñ sei":   CommandDontKnow,
}

// DetectCommand classifies text as a command only when the whole message,
// after normalization, is one of the known words. Anything containing digits
// or punctuation is an answer.
func DetectCommand(text string) Command {
	normalized := normalizeCommandText(text)
	if normalized == "" {
		return CommandNone
	}
	for _, r := range normalized {
		if !unicode.IsLetter(r) && r != ' ' {
			return CommandNone
		}
	}
	return commandAliases[normalized]
}

func normalizeCommandText(text string) string {
	text = norm.NFC.String(text)
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
