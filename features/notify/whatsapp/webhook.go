package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ErrBadSignature indicates the webhook payload failed HMAC verification.
var ErrBadSignature = errors.New("webhook signature mismatch")

type (
	// InboundMessage is a single text message extracted from a webhook
	// notification.
	InboundMessage struct {
		From      string
		MessageID string
		Text      string
		Timestamp string
	}

	webhookPayload struct {
		Entry []struct {
			Changes []struct {
				Value struct {
					Messages []struct {
						From      string `json:"from"`
						ID        string `json:"id"`
						Timestamp string `json:"timestamp"`
						Type      string `json:"type"`
						Text      struct {
							Body string `json:"body"`
						} `json:"text"`
					} `json:"messages"`
				} `json:"value"`
			} `json:"changes"`
		} `json:"entry"`
	}
)

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body using the app secret.
func VerifySignature(appSecret string, body []byte, header string) error {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return ErrBadSignature
	}
	return nil
}

// HandleVerification answers the Graph API's webhook subscription handshake:
// echo hub.challenge when hub.verify_token matches, 403 otherwise.
func HandleVerification(w http.ResponseWriter, r *http.Request, verifyToken string) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == verifyToken {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	w.WriteHeader(http.StatusForbidden)
}

// ParseInbound extracts the text messages from a webhook notification body.
// Non-text message types are skipped.
func ParseInbound(body []byte) ([]InboundMessage, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					continue
				}
				out = append(out, InboundMessage{
					From:      msg.From,
					MessageID: msg.ID,
					Text:      msg.Text.Body,
					Timestamp: msg.Timestamp,
				})
			}
		}
	}
	return out, nil
}
