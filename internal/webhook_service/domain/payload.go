package domain

import "encoding/json"

// WebhookPayload mirrors the body Meta posts to the webhook endpoint.
type WebhookPayload struct {
	Object string         `json:"object" validate:"required"`
	Entry  []WebhookEntry `json:"entry" validate:"required,min=1,dive"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes" validate:"dive"`
}

// WebhookChange keeps Value raw: its shape depends on Field and only the
// "messages" field is decoded. A missing Field is skipped like any unrouted
// field so it cannot fail its siblings.
type WebhookChange struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// FieldMessages carries inbound messages, delivery statuses and errors.
const FieldMessages = "messages"

// WebhookValue is the decoded value of a "messages" change. Messages stay
// as maps because their shape varies by message type.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         Metadata         `json:"metadata"`
	Contacts         []Contact        `json:"contacts"`
	Messages         []map[string]any `json:"messages"`
	Statuses         []MessageStatus  `json:"statuses"`
	Errors           []WebhookError   `json:"errors"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

type ContactProfile struct {
	Name string `json:"name"`
}

// MessageStatus is a sent/delivered/read/failed receipt for an outbound message.
type MessageStatus struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Timestamp    string         `json:"timestamp"`
	RecipientID  string         `json:"recipient_id"`
	Conversation map[string]any `json:"conversation,omitempty"`
	Pricing      map[string]any `json:"pricing,omitempty"`
	Errors       []WebhookError `json:"errors,omitempty"`
}

// WebhookError is a platform-side error reported through the webhook.
type WebhookError struct {
	Code      int            `json:"code"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Href      string         `json:"href,omitempty"`
	ErrorData map[string]any `json:"error_data,omitempty"`
}

// ContactName returns the profile name for waID, or "".
func (v WebhookValue) ContactName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
