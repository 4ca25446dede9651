package cart

import (
	"bytes"
	"cmp"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	cartdto "github.com/angelmondragon/partyshop-backend/api/controllers/cart/dto"
	"github.com/angelmondragon/partyshop-backend/api/responses"
	"github.com/angelmondragon/partyshop-backend/internal/checkout"
	"github.com/angelmondragon/partyshop-backend/pkg/logger"
)

const maxWebhookBytes = 64 << 10

// CartCheckout prices the cart and returns the payment preference.
func CartCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "checkout", svc != nil, func(r *http.Request) (int, any, error) {
		var body cartdto.OwnerRequest
		owner, err := decodeOwned(r, &body, true)
		if err != nil {
			return responses.Fail(err)
		}
		return responses.Result(svc.BuildCheckout(r.Context(), owner))
	})
}

// webhookBody covers both notification shapes providers post. Ids arrive as
// JSON strings or numbers.
type webhookBody struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id"`
	Data  struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// CheckoutWebhook acknowledges provider callbacks. Query parameters win over
// the body, and an unparseable body still gets an ack.
func CheckoutWebhook(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return responses.Handle(logg, "checkout", svc != nil, func(r *http.Request) (int, any, error) {
		query := r.URL.Query()
		note := checkout.WebhookNotification{
			Topic: strings.TrimSpace(query.Get("topic")),
			ID:    strings.TrimSpace(query.Get("id")),
			Type:  strings.TrimSpace(query.Get("type")),
		}
		if body, ok := readWebhookBody(r); ok {
			note.Topic = cmp.Or(note.Topic, body.Topic)
			note.Type = cmp.Or(note.Type, body.Type)
			note.ID = cmp.Or(note.ID, rawID(body.Data.ID), rawID(body.ID))
		}
		return responses.Result(svc.AcknowledgeWebhook(r.Context(), note))
	})
}

func readWebhookBody(r *http.Request) (webhookBody, bool) {
	var body webhookBody
	if r.Body == nil {
		return body, false
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil || len(raw) == 0 {
		return body, false
	}
	return body, json.Unmarshal(raw, &body) == nil
}

// rawID renders a JSON string or number id as text. null and absent are empty.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	return string(raw)
}
