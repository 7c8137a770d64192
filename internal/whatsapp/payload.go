package whatsapp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const businessAccountObject = "whatsapp_business_account"

// Webhook is the envelope the Cloud API posts to the receive endpoint.
type Webhook struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []rawMessage `json:"messages"`
	Statuses []rawStatus  `json:"statuses"`
}

type rawMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
}

type rawStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
	Errors      []struct {
		Code  int    `json:"code"`
		Title string `json:"title"`
	} `json:"errors"`
}

// InboundMessage is one client message flattened out of a webhook.
type InboundMessage struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	Type          string    `json:"type"`
	Text          string    `json:"text"`
	ProfileName   string    `json:"profile_name,omitempty"`
	PhoneNumberID string    `json:"phone_number_id"`
	SentAt        time.Time `json:"sent_at"`
}

// HasText reports whether the message carries answer text.
func (m InboundMessage) HasText() bool { return m.Text != "" }

// StatusUpdate is a delivery receipt for a message the platform sent.
type StatusUpdate struct {
	MessageID   string
	Status      string
	RecipientID string
	At          time.Time
	ErrorCode   string
	ErrorTitle  string
}

// Notification is the flattened content of one webhook delivery.
type Notification struct {
	Messages []InboundMessage
	Statuses []StatusUpdate
}

// Parse decodes a webhook body. Payloads for other objects or fields yield an
// empty notification rather than an error.
func Parse(body []byte) (*Notification, error) {
	var hook Webhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	out := &Notification{}
	if hook.Object != businessAccountObject {
		return out, nil
	}
	for _, entry := range hook.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			v := change.Value
			profiles := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				profiles[c.WaID] = c.Profile.Name
			}
			for _, m := range v.Messages {
				out.Messages = append(out.Messages, InboundMessage{
					ID:            m.ID,
					From:          m.From,
					Type:          m.Type,
					Text:          m.text(),
					ProfileName:   profiles[m.From],
					PhoneNumberID: v.Metadata.PhoneNumberID,
					SentAt:        parseUnix(m.Timestamp),
				})
			}
			for _, s := range v.Statuses {
				update := StatusUpdate{
					MessageID:   s.ID,
					Status:      s.Status,
					RecipientID: s.RecipientID,
					At:          parseUnix(s.Timestamp),
				}
				if len(s.Errors) > 0 {
					update.ErrorCode = strconv.Itoa(s.Errors[0].Code)
					update.ErrorTitle = s.Errors[0].Title
				}
				out.Statuses = append(out.Statuses, update)
			}
		}
	}
	return out, nil
}

func (m rawMessage) text() string {
	switch m.Type {
	case "text":
		if m.Text != nil {
			return m.Text.Body
		}
	case "button":
		if m.Button != nil {
			return m.Button.Text
		}
	case "interactive":
		if m.Interactive == nil {
			return ""
		}
		if m.Interactive.ButtonReply != nil {
			return m.Interactive.ButtonReply.Title
		}
		if m.Interactive.ListReply != nil {
			return m.Interactive.ListReply.Title
		}
	}
	return ""
}

func parseUnix(ts string) time.Time {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
