// Package whatsapp implements the orchestrator's Notifier on the WhatsApp
// Cloud API (Meta Graph). Outbound messages are sent as text messages from
// the business phone number; inbound webhooks are verified and decoded by
// the companion webhook helpers.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sokoflow/sokoflow/runtime/orchestrator"
)

const (
	defaultGraphBaseURL = "https://graph.facebook.com/v17.0"
	defaultSendTimeout  = 10 * time.Second
)

type (
	// Options configures the WhatsApp notifier.
	Options struct {
		// AccessToken is the Cloud API bearer token. Required.
		AccessToken string
		// PhoneNumberID is the sending phone number id. Required.
		PhoneNumberID string
		// BaseURL overrides the Graph API endpoint, mainly for tests.
		BaseURL string
		// HTTPClient defaults to a client with a 10s timeout.
		HTTPClient *http.Client
	}

	// Notifier sends outbound messages through the WhatsApp Cloud API.
	Notifier struct {
		token   string
		phoneID string
		baseURL string
		http    *http.Client
	}

	sendRequest struct {
		MessagingProduct string   `json:"messaging_product"`
		To               string   `json:"to"`
		Type             string   `json:"type"`
		Text             sendText `json:"text"`
	}

	sendText struct {
		Body string `json:"body"`
	}
)

// New constructs a WhatsApp notifier.
func New(opts Options) (*Notifier, error) {
	if opts.AccessToken == "" {
		return nil, errors.New("access token is required")
	}
	if opts.PhoneNumberID == "" {
		return nil, errors.New("phone number id is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}
	return &Notifier{
		token:   opts.AccessToken,
		phoneID: opts.PhoneNumberID,
		baseURL: baseURL,
		http:    httpClient,
	}, nil
}

// Send implements orchestrator.Notifier by posting a text message to the
// recipient's WhatsApp number.
func (n *Notifier) Send(ctx context.Context, out orchestrator.Outbound) error {
	if out.To == "" {
		return errors.New("recipient is required")
	}
	payload, err := json.Marshal(sendRequest{
		MessagingProduct: "whatsapp",
		To:               out.To,
		Type:             "text",
		Text:             sendText{Body: out.Message},
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/%s/messages", n.baseURL, n.phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+n.token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp send: status %d: %s", resp.StatusCode, body)
	}
	return nil
}
