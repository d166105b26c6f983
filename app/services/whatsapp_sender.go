package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/google/uuid"
)

// Send error classes. Anything else returned by a sender means the outcome is unknown.
var (
	// ErrSendRejected: the provider refused the message; retrying will not help
	ErrSendRejected = errors.New("message rejected by provider")
	// ErrSendNotAccepted: the provider did not take the message (throttled or unavailable); safe to retry
	ErrSendNotAccepted = errors.New("message not accepted by provider")
)

const mockProviderDomain = "mock"

// TemplateMessage is one template send
type TemplateMessage struct {
	To           string
	TemplateName string
	Language     string
	HeaderParams []string
	BodyParams   []string
	// ButtonParams maps the 0-based button index to its URL parameter
	ButtonParams map[int]string
}

// SendResult is the provider's synchronous answer
type SendResult struct {
	ProviderMessageID string
	RawResponse       []byte
}

// WhatsAppSender sends approved templates
type WhatsAppSender interface {
	SendTemplate(ctx context.Context, msg TemplateMessage) (*SendResult, error)
}

// NewWhatsAppSender returns the Cloud API sender, or the mock when the provider domain is "mock"
func NewWhatsAppSender(cfg config.WhatsAppConfig) WhatsAppSender {
	if cfg.ProviderDomain == "" || cfg.ProviderDomain == mockProviderDomain {
		return NewMockWhatsAppSender()
	}
	return NewCloudAPISender(cfg, &http.Client{Timeout: cfg.Timeout})
}

// CloudAPISender implements WhatsAppSender against the Graph API
type CloudAPISender struct {
	config config.WhatsAppConfig
	client *http.Client
}

func NewCloudAPISender(cfg config.WhatsAppConfig, client *http.Client) *CloudAPISender {
	return &CloudAPISender{config: cfg, client: client}
}

type cloudTemplateRequest struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Template         cloudTemplate `json:"template"`
}

type cloudTemplate struct {
	Name       string           `json:"name"`
	Language   cloudLanguage    `json:"language"`
	Components []cloudComponent `json:"components,omitempty"`
}

type cloudLanguage struct {
	Code string `json:"code"`
}

type cloudComponent struct {
	Type       string           `json:"type"`
	SubType    string           `json:"sub_type,omitempty"`
	Index      string           `json:"index,omitempty"`
	Parameters []cloudParameter `json:"parameters"`
}

type cloudParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type cloudSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func textParams(values []string) []cloudParameter {
	out := make([]cloudParameter, 0, len(values))
	for _, v := range values {
		out = append(out, cloudParameter{Type: "text", Text: v})
	}
	return out
}

func buildCloudRequest(msg TemplateMessage) cloudTemplateRequest {
	var components []cloudComponent
	if len(msg.HeaderParams) > 0 {
		components = append(components, cloudComponent{Type: "header", Parameters: textParams(msg.HeaderParams)})
	}
	if len(msg.BodyParams) > 0 {
		components = append(components, cloudComponent{Type: "body", Parameters: textParams(msg.BodyParams)})
	}
	for i := 0; i < 3; i++ {
		v, ok := msg.ButtonParams[i]
		if !ok {
			continue
		}
		components = append(components, cloudComponent{
			Type:       "button",
			SubType:    "url",
			Index:      strconv.Itoa(i),
			Parameters: textParams([]string{v}),
		})
	}

	return cloudTemplateRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(msg.To, "+"),
		Type:             "template",
		Template: cloudTemplate{
			Name:       msg.TemplateName,
			Language:   cloudLanguage{Code: msg.Language},
			Components: components,
		},
	}
}

// SendTemplate posts one template message
func (s *CloudAPISender) SendTemplate(ctx context.Context, msg TemplateMessage) (*SendResult, error) {
	requestBody, err := json.Marshal(buildCloudRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", ErrSendRejected, err)
	}

	url := fmt.Sprintf("https://%s/%s/%s/messages", s.config.ProviderDomain, s.config.APIVersion, s.config.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create HTTP request: %v", ErrSendNotAccepted, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.AccessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send template message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read send response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrSendNotAccepted, resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrSendRejected, resp.StatusCode, string(body))
	}

	var parsed cloudSendResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return nil, fmt.Errorf("send accepted without message id: %s", string(body))
	}

	return &SendResult{ProviderMessageID: parsed.Messages[0].ID, RawResponse: body}, nil
}

// MockWhatsAppSender records messages and answers like the Cloud API
type MockWhatsAppSender struct {
	mu   sync.Mutex
	Sent []TemplateMessage
	// Fail, when set, decides the error for a message
	Fail func(msg TemplateMessage) error
}

func NewMockWhatsAppSender() *MockWhatsAppSender {
	return &MockWhatsAppSender{}
}

func (m *MockWhatsAppSender) SendTemplate(ctx context.Context, msg TemplateMessage) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail != nil {
		if err := m.Fail(msg); err != nil {
			return nil, err
		}
	}
	m.Sent = append(m.Sent, msg)

	id := "wamid.mock." + uuid.NewString()
	raw, _ := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"contacts":          []map[string]string{{"input": msg.To, "wa_id": strings.TrimPrefix(msg.To, "+")}},
		"messages":          []map[string]string{{"id": id}},
	})
	return &SendResult{ProviderMessageID: id, RawResponse: raw}, nil
}

// SentMessages returns a copy of the recorded messages
func (m *MockWhatsAppSender) SentMessages() []TemplateMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TemplateMessage(nil), m.Sent...)
}
