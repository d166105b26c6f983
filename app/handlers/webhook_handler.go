package handlers

import (
	"strconv"

	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
)

const signatureHeader = "X-Hub-Signature-256"

// WebhookHandlerInterface defines the contract for provider webhook handlers
type WebhookHandlerInterface interface {
	Verify(c fiber.Ctx) error
	Receive(c fiber.Ctx) error
}

// WebhookHandler receives provider callbacks; it sits outside JWT auth
type WebhookHandler struct {
	baseHandler
	flow businessflow.BillingIngestFlow
}

func NewWebhookHandler(flow businessflow.BillingIngestFlow) *WebhookHandler {
	return &WebhookHandler{baseHandler: newBaseHandler(), flow: flow}
}

func businessIDParam(c fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("business_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// Verify answers the subscription challenge
// @Summary Verify Webhook Subscription
// @Tags Webhooks
// @Produce plain
// @Param business_id path int true "Business ID"
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query string true "Challenge echoed back"
// @Success 200 {string} string "Challenge"
// @Failure 403 {object} dto.APIResponse "Verification failed"
// @Router /api/v1/webhooks/whatsapp/{business_id} [get]
func (h *WebhookHandler) Verify(c fiber.Ctx) error {
	businessID, ok := businessIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid business ID", "INVALID_BUSINESS_ID", nil)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	challenge, err := h.flow.VerifySubscription(ctx, &dto.WebhookVerifyRequest{
		BusinessID:  businessID,
		Mode:        c.Query("hub.mode"),
		VerifyToken: c.Query("hub.verify_token"),
		Challenge:   c.Query("hub.challenge"),
	})
	if err != nil {
		return h.flowError(c, err, "Webhook verification failed", "VERIFICATION_FAILED")
	}
	return c.Status(fiber.StatusOK).SendString(challenge)
}

// Receive ingests a webhook payload into the billing ledger
// @Summary Receive Webhook
// @Description Parse provider callbacks into billing events and project them onto message logs
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param business_id path int true "Business ID"
// @Param X-Hub-Signature-256 header string false "sha256=<hex hmac of the body>"
// @Success 200 {object} dto.APIResponse{data=dto.IngestResult} "Ingested"
// @Failure 401 {object} dto.APIResponse "Invalid signature"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/webhooks/whatsapp/{business_id} [post]
func (h *WebhookHandler) Receive(c fiber.Ctx) error {
	businessID, ok := businessIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid business ID", "INVALID_BUSINESS_ID", nil)
	}

	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.IngestWebhook(ctx, &dto.WebhookIngestRequest{
		BusinessID: businessID,
		Payload:    payload,
		Signature:  c.Get(signatureHeader),
	})
	if err != nil {
		return h.flowError(c, err, "Webhook ingest failed", "WEBHOOK_INGEST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Webhook received", result)
}
