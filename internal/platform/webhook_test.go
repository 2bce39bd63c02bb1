package platform

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/mediavault/internal/models"
)

const testSecret = "test-channel-secret"

func newParserClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(WithAccessToken("test-token"), WithChannelSecret(testSecret))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func callbackRequest(secret, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(secret, []byte(body)))
	return req
}

// webhookEventJSON builds one platform message event with the envelope fields
// a real delivery carries.
func webhookEventJSON(message string) string {
	return fmt.Sprintf(`{"type":"message","mode":"active","timestamp":1712300000000,`+
		`"webhookEventId":"01HVWEBHOOK","deliveryContext":{"isRedelivery":false},`+
		`"source":{"type":"user","userId":"U1"},"replyToken":"r1","message":%s}`, message)
}

func TestParseCallback(t *testing.T) {
	body := fmt.Sprintf(`{"destination":"U0000","events":[%s,%s,%s,%s,`+
		`{"type":"follow","mode":"active","timestamp":1712300000000,"webhookEventId":"01HVFOLLOW",`+
		`"deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U1"},"replyToken":"r5"}]}`,
		webhookEventJSON(`{"id":"m1","type":"image","quoteToken":"q1","contentProvider":{"type":"line"}}`),
		webhookEventJSON(`{"id":"m2","type":"text","text":"hi","quoteToken":"q2"}`),
		webhookEventJSON(`{"id":"m3","type":"video","duration":5000,"quoteToken":"q3","contentProvider":{"type":"line"}}`),
		webhookEventJSON(`{"id":"m4","type":"sticker","packageId":"1","stickerId":"2","stickerResourceType":"STATIC"}`),
	)

	client := newParserClient(t)
	events, err := client.ParseCallback(callbackRequest(testSecret, body))
	if err != nil {
		t.Fatalf("ParseCallback failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 message events, got %d: %+v", len(events), events)
	}

	if events[0].ID != "m1" || events[0].Kind != models.EventKindImage {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].ID != "m2" || events[1].Kind != models.EventKindText || events[1].Text != "hi" {
		t.Errorf("event 1 = %+v", events[1])
	}
	if events[2].ID != "m3" || events[2].Kind != models.EventKindVideo {
		t.Errorf("event 2 = %+v", events[2])
	}
	// Kinds the archiver does not handle pass through for the router to drop.
	if events[3].Kind != models.EventKind("sticker") {
		t.Errorf("event 3 = %+v", events[3])
	}
}

func TestParseCallback_InvalidSignature(t *testing.T) {
	client := newParserClient(t)
	body := `{"destination":"U0000","events":[]}`

	_, err := client.ParseCallback(callbackRequest("other-secret", body))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParseCallback_TamperedBody(t *testing.T) {
	client := newParserClient(t)
	signed := `{"destination":"U0000","events":[]}`

	req := httptest.NewRequest(http.MethodPost, "/callback",
		strings.NewReader(`{"destination":"U9999","events":[]}`))
	req.Header.Set(SignatureHeader, Sign(testSecret, []byte(signed)))

	_, err := client.ParseCallback(req)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
}

func TestParseCallback_MalformedSignature(t *testing.T) {
	client := newParserClient(t)
	body := `{"destination":"U0000","events":[]}`

	for _, sig := range []string{"not-base64!!!", ""} {
		req := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(body))
		req.Header.Set(SignatureHeader, sig)
		if _, err := client.ParseCallback(req); err == nil {
			t.Errorf("signature %q accepted", sig)
		}
	}
}

func TestParseCallback_InvalidJSON(t *testing.T) {
	client := newParserClient(t)
	_, err := client.ParseCallback(callbackRequest(testSecret, "not json"))
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Errorf("decode failure misreported as signature failure: %v", err)
	}
}

func TestParseCallback_EmptyEvents(t *testing.T) {
	client := newParserClient(t)
	events, err := client.ParseCallback(callbackRequest(testSecret, `{"destination":"U0000","events":[]}`))
	if err != nil {
		t.Fatalf("ParseCallback failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestSign(t *testing.T) {
	body := []byte(`{"events":[]}`)
	if Sign(testSecret, body) != Sign(testSecret, body) {
		t.Error("Sign is not deterministic")
	}
	if Sign(testSecret, body) == Sign("other", body) {
		t.Error("different secrets produced the same signature")
	}
}
