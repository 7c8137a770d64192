package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashPhone(t *testing.T) {
	h1 := HashPhone("+5511999990000")
	h2 := HashPhone("+5511999990000")
	h3 := HashPhone("+5521988887777")

	assert.Equal(t, h1, h2, "same input should produce same hash")
	assert.NotEqual(t, h1, h3, "different input should produce different hash")
	assert.Len(t, h1, 64, "SHA-256 hex should be 64 chars")
}

func TestScrubPII(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"email", "meu email é maria@example.com", "meu email é [EMAIL]"},
		{"phone", "me ligue em (11) 99999-0000", "me ligue em [PHONE]"},
		{"phone with country code", "número +5511999990000", "número [PHONE]"},
		{"budget kept", "120000", "120000"},
		{"no pii", "Casa térrea com quintal", "Casa térrea com quintal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, ScrubPII(tt.input))
		})
	}
}

func TestScrubAnswers(t *testing.T) {
	answers := []Answer{
		{Order: 1, Value: "falar com joao@example.com"},
		{Order: 2, Value: "Moderno"},
	}
	ScrubAnswers(answers)
	assert.Equal(t, "falar com [EMAIL]", answers[0].Value)
	assert.Equal(t, "Moderno", answers[1].Value)
}
