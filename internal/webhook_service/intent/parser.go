package intent

import (
	"strconv"
	"strings"
)

// MessageType is the shape of an inbound message.
type MessageType string

const (
	TypeText           MessageType = "text"
	TypeButtonReply    MessageType = "button_reply"
	TypeListReply      MessageType = "list_reply"
	TypeProductInquiry MessageType = "product_inquiry"
	TypeLocation       MessageType = "location"
	TypeImage          MessageType = "image"
	TypeDocument       MessageType = "document"
	TypeUnknown        MessageType = "unknown"
)

// ParsedMessage is the classifier's view of one message. Intent is never empty.
type ParsedMessage struct {
	MessageType MessageType       `json:"message_type"`
	Fields      map[string]string `json:"fields"`
	Intent      Intent            `json:"intent"`
}

// Parse extracts type-specific fields from a decoded WhatsApp message object
// and classifies its most textual field.
func (c *Classifier) Parse(msg map[string]any) ParsedMessage {
	pm := ParsedMessage{MessageType: TypeUnknown, Fields: map[string]string{}}
	if msg == nil {
		pm.Intent = c.apply("", Unknown)
		return pm
	}

	var text string
	kind, _ := msg["type"].(string)

	switch kind {
	case "text":
		text = str(obj(msg, "text"), "body")
		pm.MessageType = TypeText
		pm.Fields["body"] = text
		if ref := obj(obj(msg, "context"), "referred_product"); ref != nil {
			pm.MessageType = TypeProductInquiry
			pm.Fields["catalog_id"] = str(ref, "catalog_id")
			pm.Fields["product_retailer_id"] = str(ref, "product_retailer_id")
		}

	case "interactive":
		inter := obj(msg, "interactive")
		switch str(inter, "type") {
		case "button_reply":
			br := obj(inter, "button_reply")
			pm.MessageType = TypeButtonReply
			pm.Fields["button_id"] = str(br, "id")
			pm.Fields["button_title"] = str(br, "title")
			text = pm.Fields["button_title"]
		case "list_reply":
			lr := obj(inter, "list_reply")
			pm.MessageType = TypeListReply
			pm.Fields["list_id"] = str(lr, "id")
			pm.Fields["list_title"] = str(lr, "title")
			pm.Fields["list_description"] = str(lr, "description")
			text = pm.Fields["list_title"]
		}

	case "button":
		b := obj(msg, "button")
		pm.MessageType = TypeButtonReply
		pm.Fields["button_payload"] = str(b, "payload")
		pm.Fields["button_title"] = str(b, "text")
		text = pm.Fields["button_title"]

	case "order":
		o := obj(msg, "order")
		pm.MessageType = TypeProductInquiry
		pm.Fields["catalog_id"] = str(o, "catalog_id")
		if items, ok := o["product_items"].([]any); ok && len(items) > 0 {
			if first, ok := items[0].(map[string]any); ok {
				pm.Fields["product_retailer_id"] = str(first, "product_retailer_id")
			}
			pm.Fields["item_count"] = strconv.Itoa(len(items))
		}
		text = str(o, "text")

	case "location":
		loc := obj(msg, "location")
		pm.MessageType = TypeLocation
		pm.Fields["latitude"] = str(loc, "latitude")
		pm.Fields["longitude"] = str(loc, "longitude")
		pm.Fields["name"] = str(loc, "name")
		pm.Fields["address"] = str(loc, "address")

	case "image":
		img := obj(msg, "image")
		pm.MessageType = TypeImage
		pm.Fields["media_id"] = str(img, "id")
		pm.Fields["mime_type"] = str(img, "mime_type")
		pm.Fields["caption"] = str(img, "caption")
		text = pm.Fields["caption"]

	case "document":
		doc := obj(msg, "document")
		pm.MessageType = TypeDocument
		pm.Fields["media_id"] = str(doc, "id")
		pm.Fields["mime_type"] = str(doc, "mime_type")
		pm.Fields["filename"] = str(doc, "filename")
		pm.Fields["caption"] = str(doc, "caption")
		text = pm.Fields["caption"]
	}

	pm.Intent = c.Classify(text)
	if pm.MessageType == TypeProductInquiry && pm.Intent == Unknown {
		pm.Intent = Browse
	}
	return pm
}

func obj(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

// str renders scalar JSON values as strings; objects and arrays give "".
func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
