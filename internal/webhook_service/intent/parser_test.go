package intent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestClassifier_Parse(t *testing.T) {
	c := NewClassifier()

	testCases := []struct {
		name       string
		raw        string
		wantType   MessageType
		wantIntent Intent
		wantFields map[string]string
	}{
		{
			name:       "Text",
			raw:        `{"id":"wamid.1","type":"text","text":{"body":"hello"}}`,
			wantType:   TypeText,
			wantIntent: Greeting,
			wantFields: map[string]string{"body": "hello"},
		},
		{
			name:       "ButtonReply",
			raw:        `{"type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"btn_cart","title":"View cart"}}}`,
			wantType:   TypeButtonReply,
			wantIntent: Cart,
			wantFields: map[string]string{"button_id": "btn_cart", "button_title": "View cart"},
		},
		{
			name:       "ListReply",
			raw:        `{"type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"row_1","title":"Track my parcel","description":"latest"}}}`,
			wantType:   TypeListReply,
			wantIntent: OrderStatus,
			wantFields: map[string]string{"list_id": "row_1", "list_title": "Track my parcel", "list_description": "latest"},
		},
		{
			name:       "TemplateButton",
			raw:        `{"type":"button","button":{"payload":"STOP_PROMOS","text":"Stop promotions"}}`,
			wantType:   TypeButtonReply,
			wantIntent: Cancel,
			wantFields: map[string]string{"button_payload": "STOP_PROMOS", "button_title": "Stop promotions"},
		},
		{
			name:       "ProductInquiryDefaultsToBrowse",
			raw:        `{"type":"text","text":{"body":"?"},"context":{"referred_product":{"catalog_id":"cat1","product_retailer_id":"sku-9"}}}`,
			wantType:   TypeProductInquiry,
			wantIntent: Browse,
			wantFields: map[string]string{"body": "?", "catalog_id": "cat1", "product_retailer_id": "sku-9"},
		},
		{
			name:       "Order",
			raw:        `{"type":"order","order":{"catalog_id":"cat1","text":"","product_items":[{"product_retailer_id":"sku-1"},{"product_retailer_id":"sku-2"}]}}`,
			wantType:   TypeProductInquiry,
			wantIntent: Browse,
			wantFields: map[string]string{"catalog_id": "cat1", "product_retailer_id": "sku-1", "item_count": "2"},
		},
		{
			name:       "Location",
			raw:        `{"type":"location","location":{"latitude":6.5244,"longitude":3.3792,"name":"Shop","address":"1 Main St"}}`,
			wantType:   TypeLocation,
			wantIntent: Unknown,
			wantFields: map[string]string{"latitude": "6.5244", "longitude": "3.3792", "name": "Shop", "address": "1 Main St"},
		},
		{
			name:       "ImageWithCaption",
			raw:        `{"type":"image","image":{"id":"media-1","mime_type":"image/jpeg","caption":"help, wrong item"}}`,
			wantType:   TypeImage,
			wantIntent: Support,
			wantFields: map[string]string{"media_id": "media-1", "mime_type": "image/jpeg", "caption": "help, wrong item"},
		},
		{
			name:       "Document",
			raw:        `{"type":"document","document":{"id":"media-2","mime_type":"application/pdf","filename":"invoice.pdf"}}`,
			wantType:   TypeDocument,
			wantIntent: Unknown,
			wantFields: map[string]string{"media_id": "media-2", "mime_type": "application/pdf", "filename": "invoice.pdf", "caption": ""},
		},
		{
			name:       "Unsupported",
			raw:        `{"type":"sticker","sticker":{"id":"s"}}`,
			wantType:   TypeUnknown,
			wantIntent: Unknown,
			wantFields: map[string]string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pm := c.Parse(decode(t, tc.raw))
			assert.Equal(t, tc.wantType, pm.MessageType)
			assert.Equal(t, tc.wantIntent, pm.Intent)
			assert.Equal(t, tc.wantFields, pm.Fields)
		})
	}
}

func TestClassifier_Parse_Nil(t *testing.T) {
	pm := NewClassifier().Parse(nil)
	assert.Equal(t, TypeUnknown, pm.MessageType)
	assert.Equal(t, Unknown, pm.Intent)
	assert.NotNil(t, pm.Fields)
}
