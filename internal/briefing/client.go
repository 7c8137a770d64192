package briefing

import (
	"strings"

	"github.com/google/uuid"
)

// Client is the end client answering briefings over a channel address.
type Client struct {
	ID       uuid.UUID `json:"id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
}

// FirstName returns the leading word of the client's name, used in greetings.
func (c Client) FirstName() string {
	fields := strings.Fields(c.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// NormalizeAddress reduces a phone-style channel address to "+<digits>",
// prefixing countryCode when the number does not already carry it.
func NormalizeAddress(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(digits, countryCode) {
		digits = countryCode + digits
	}
	return "+" + digits
}
