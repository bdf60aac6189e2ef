package schemas

import "strings"

// WebhookEnvelope is the subset of the WhatsApp Cloud API notification body we read.
type WebhookEnvelope struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string             `json:"field"`
	Value WebhookChangeValue `json:"value"`
}

type WebhookChangeValue struct {
	Messages []WebhookMessage `json:"messages"`
}

type WebhookMessage struct {
	ID   string       `json:"id"`
	From string       `json:"from"`
	Type string       `json:"type"`
	Text *WebhookText `json:"text,omitempty"`
}

type WebhookText struct {
	Body string `json:"body"`
}

// TextMessages flattens the envelope into the text messages it carries.
func (e WebhookEnvelope) TextMessages() []WebhookMessage {
	messages := []WebhookMessage{}
	for _, entry := range e.Entry {
		for _, change := range entry.Changes {
			for _, message := range change.Value.Messages {
				if message.Text == nil || strings.TrimSpace(message.Text.Body) == "" {
					continue
				}
				messages = append(messages, message)
			}
		}
	}
	return messages
}

// NormalizePhone keeps only the digits of a phone-number-style identifier.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
