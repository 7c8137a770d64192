package briefing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCommand(t *testing.T) {
	cases := map[string]Command{
		"pular":            CommandSkip,
		"  PULA ":          CommandSkip,
		"Skip":             CommandSkip,
		"voltar":           CommandBack,
		"Volta":            CommandBack,
		"Não sei":          CommandDontKnow,
		"nao   sei":        CommandDontKnow,
		"n sei":            CommandDontKnow,
		"ñ sei":            CommandDontKnow,
		"Na\u0303o sei":   CommandDontKnow,
		"pular!":           CommandNone,
		"pular 2":          CommandNone,
		"não sei o prazo":  CommandNone,
		"Casa":             CommandNone,
		"":                 CommandNone,
		"voltar, por favor": CommandNone,
	}
	for in, want := range cases {
		assert.Equalf(t, want, DetectCommand(in), "DetectCommand(%q)", in)
	}
}

func TestValidateNumber(t *testing.T) {
	q := Question{Order: 2, Type: TypeNumber, Required: true}

	got, err := ValidateAnswer(q, "120.000")
	require.NoError(t, err)
	assert.Equal(t, "120000", got)

	got, err = ValidateAnswer(q, " 1 500,00 ")
	require.NoError(t, err)
	assert.Equal(t, "150000", got)

	for _, bad := range []string{"abc", "12a", "R$ 100", ".,", "-5"} {
		_, err := ValidateAnswer(q, bad)
		var verr *ValidationError
		require.Truef(t, errors.As(err, &verr), "expected validation error for %q", bad)
		assert.Equal(t, ReasonNotANumber, verr.Reason)
		assert.Equal(t, 2, verr.Order)
	}
}

func TestValidateMultipleChoice(t *testing.T) {
	q := Question{Order: 1, Type: TypeMultipleChoice, Options: []string{"Moderno", "Clássico"}}

	got, err := ValidateAnswer(q, "modern")
	require.NoError(t, err)
	assert.Equal(t, "Moderno", got)

	got, err = ValidateAnswer(q, "CLÁSSICO")
	require.NoError(t, err)
	assert.Equal(t, "Clássico", got)

	got, err = ValidateAnswer(q, "cláss")
	require.NoError(t, err)
	assert.Equal(t, "Clássico", got)

	_, err = ValidateAnswer(q, "quero algo moderno")
	assert.True(t, IsRejection(err), "answer containing an option is not a match")

	_, err = ValidateAnswer(q, "mo")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonInvalidOption, verr.Reason)
	assert.Equal(t, []string{"Moderno", "Clássico"}, verr.Options)

	_, err = ValidateAnswer(q, "rústico")
	assert.True(t, IsRejection(err))
}

func TestValidateMultipleChoiceRejectsAmbiguousAnswers(t *testing.T) {
	yesNo := Question{Order: 2, Type: TypeMultipleChoice, Options: []string{"Sim", "Não"}}
	_, err := ValidateAnswer(yesNo, "Não, mas sim depois")
	assert.True(t, IsRejection(err))

	got, err := ValidateAnswer(yesNo, "não")
	require.NoError(t, err)
	assert.Equal(t, "Não", got)

	letters := Question{Order: 3, Type: TypeMultipleChoice, Options: []string{"A", "B"}}
	_, err = ValidateAnswer(letters, "Casa")
	assert.True(t, IsRejection(err))

	got, err = ValidateAnswer(letters, "b")
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	styles := Question{Order: 4, Type: TypeMultipleChoice, Options: []string{"Moderno", "Modernista"}}
	_, err = ValidateAnswer(styles, "modern")
	assert.True(t, IsRejection(err), "answer matching several options is rejected")
}

func TestValidateMultipleChoiceWithoutOptions(t *testing.T) {
	q := Question{Order: 1, Type: TypeMultipleChoice}
	got, err := ValidateAnswer(q, "qualquer coisa")
	require.NoError(t, err)
	assert.Equal(t, "qualquer coisa", got)
}

func TestValidateTextAndBlank(t *testing.T) {
	q := Question{Order: 3, Type: TypeText}
	got, err := ValidateAnswer(q, "  Casa de praia ")
	require.NoError(t, err)
	assert.Equal(t, "  Casa de praia ", got)

	_, err = ValidateAnswer(q, "   ")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonBlank, verr.Reason)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "+5511999998888", NormalizeAddress("(11) 99999-8888", "55"))
	assert.Equal(t, "+5511999998888", NormalizeAddress("+55 11 99999-8888", "55"))
	assert.Equal(t, "+14155550100", NormalizeAddress("14155550100", ""))
	assert.Equal(t, "", NormalizeAddress("n/a", "55"))
}
