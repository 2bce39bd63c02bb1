package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/user/mediavault/internal/models"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "x-line-signature"

// ErrInvalidSignature reports a webhook delivery whose signature does not
// match the channel secret.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// ParseCallback authenticates and decodes a webhook delivery into message
// events. Signature verification and envelope parsing are delegated to the
// SDK; a delivery failing the signature check returns ErrInvalidSignature and
// the core is never entered. Non-message events (follows, joins, delivery
// notices) are skipped; message kinds the archiver does not handle are passed
// through so the router can decide what is supported.
func (c *Client) ParseCallback(r *http.Request) ([]models.MessageEvent, error) {
	cb, err := webhook.ParseRequest(c.channelSecret, r)
	if err != nil {
		return nil, err
	}

	var events []models.MessageEvent
	for _, ev := range cb.Events {
		msgEvent, ok := ev.(webhook.MessageEvent)
		if !ok || msgEvent.Message == nil {
			continue
		}
		switch m := msgEvent.Message.(type) {
		case webhook.TextMessageContent:
			events = append(events, models.MessageEvent{ID: m.Id, Kind: models.EventKindText, Text: m.Text})
		case webhook.ImageMessageContent:
			events = append(events, models.MessageEvent{ID: m.Id, Kind: models.EventKindImage})
		case webhook.VideoMessageContent:
			events = append(events, models.MessageEvent{ID: m.Id, Kind: models.EventKindVideo})
		default:
			events = append(events, models.MessageEvent{Kind: models.EventKind(msgEvent.Message.GetType())})
		}
	}
	return events, nil
}

// Sign computes the base64-encoded HMAC-SHA256 signature of body under
// secret. Exported for tests that construct webhook requests.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
