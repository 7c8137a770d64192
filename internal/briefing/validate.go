package briefing

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// minContainmentRunes is the shortest answer allowed to match an option by
// substring instead of exact equality. The answer must appear inside the
// option and match exactly one of them.
const minContainmentRunes = 3

// ValidateAnswer checks raw against the question's type and returns the value
// to store. It never mutates state.
func ValidateAnswer(q Question, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ValidationError{Order: q.Order, Type: q.Type, Reason: ReasonBlank}
	}

	switch q.Type {
	case TypeNumber:
		return validateNumber(q, trimmed)
	case TypeMultipleChoice:
		return validateChoice(q, trimmed)
	default:
		return raw, nil
	}
}

func validateNumber(q Question, value string) (string, error) {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r == '.' || r == ',' || unicode.IsSpace(r):
			continue
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			return "", &ValidationError{Order: q.Order, Type: q.Type, Reason: ReasonNotANumber}
		}
	}
	if b.Len() == 0 {
		return "", &ValidationError{Order: q.Order, Type: q.Type, Reason: ReasonNotANumber}
	}
	return b.String(), nil
}

func validateChoice(q Question, value string) (string, error) {
	if len(q.Options) == 0 {
		return value, nil
	}
	fold := cases.Fold()
	answer := fold.String(value)
	for _, opt := range q.Options {
		if fold.String(strings.TrimSpace(opt)) == answer {
			return opt, nil
		}
	}
	if utf8.RuneCountInString(value) >= minContainmentRunes {
		var matches []string
		for _, opt := range q.Options {
			if strings.Contains(fold.String(strings.TrimSpace(opt)), answer) {
				matches = append(matches, opt)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
	}
	return "", &ValidationError{
		Order:   q.Order,
		Type:    q.Type,
		Reason:  ReasonInvalidOption,
		Options: append([]string(nil), q.Options...),
	}
}
