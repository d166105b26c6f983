package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIngestFlow struct {
	verifyToken string
	received    []*dto.WebhookIngestRequest
}

func (s *stubIngestFlow) VerifySubscription(_ context.Context, req *dto.WebhookVerifyRequest) (string, error) {
	if req.Mode != "subscribe" || req.VerifyToken != s.verifyToken {
		return "", businessflow.NewBusinessError("VERIFICATION_FAILED", "verify token mismatch", businessflow.ErrWebhookVerificationFailed)
	}
	return req.Challenge, nil
}

func (s *stubIngestFlow) IngestWebhook(_ context.Context, req *dto.WebhookIngestRequest) (*dto.IngestResult, error) {
	if req.Signature == "sha256=bad" {
		return nil, businessflow.NewBusinessError("INVALID_SIGNATURE", "signature mismatch", businessflow.ErrInvalidWebhookSignature)
	}
	s.received = append(s.received, req)
	return &dto.IngestResult{Parsed: 1, Inserted: 1}, nil
}

func (s *stubIngestFlow) IngestSendResponse(context.Context, uint, []byte) (*dto.IngestResult, error) {
	return &dto.IngestResult{}, nil
}

func newWebhookApp(flow businessflow.BillingIngestFlow) *fiber.App {
	h := NewWebhookHandler(flow)
	app := fiber.New()
	app.Get("/webhooks/whatsapp/:business_id", h.Verify)
	app.Post("/webhooks/whatsapp/:business_id", h.Receive)
	return app
}

func TestWebhookHandler_Verify(t *testing.T) {
	app := newWebhookApp(&stubIngestFlow{verifyToken: "tok"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp/7?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=1158201444", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp/7?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp/abc", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookHandler_Receive(t *testing.T) {
	flow := &stubIngestFlow{}
	app := newWebhookApp(flow)
	payload := `{"entry":[]}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/7", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, "sha256=abc")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var envelope struct {
		Success bool             `json:"success"`
		Data    dto.IngestResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, 1, envelope.Data.Inserted)

	require.Len(t, flow.received, 1)
	assert.Equal(t, uint(7), flow.received[0].BusinessID)
	assert.Equal(t, payload, string(flow.received[0].Payload))
	assert.Equal(t, "sha256=abc", flow.received[0].Signature)

	bad := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/7", strings.NewReader(payload))
	bad.Header.Set(signatureHeader, "sha256=bad")
	resp, err = app.Test(bad)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookHandler_EchoesRequestID(t *testing.T) {
	app := newWebhookApp(&stubIngestFlow{})

	bad := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp/7", strings.NewReader(`{}`))
	bad.Header.Set(signatureHeader, "sha256=bad")
	bad.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(bad)
	require.NoError(t, err)
	defer resp.Body.Close()

	var envelope dto.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.False(t, envelope.Success)
	assert.Equal(t, "req-42", envelope.RequestID)
}
