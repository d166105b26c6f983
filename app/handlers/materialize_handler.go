package handlers

import (
	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
)

// MaterializeHandlerInterface defines the contract for materialization handlers
type MaterializeHandlerInterface interface {
	Materialize(c fiber.Ctx) error
}

// MaterializeHandler handles recipient materialization requests
type MaterializeHandler struct {
	baseHandler
	flow businessflow.MaterializeFlow
}

func NewMaterializeHandler(flow businessflow.MaterializeFlow) *MaterializeHandler {
	return &MaterializeHandler{baseHandler: newBaseHandler(), flow: flow}
}

// Materialize resolves template parameters for every row of a source
// @Summary Materialize Recipients
// @Description Resolve template parameters per row and optionally persist frozen recipients into a named audience
// @Tags Recipients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.MaterializeRecipientsRequest true "Row source and options"
// @Success 200 {object} dto.APIResponse{data=dto.MaterializeRecipientsResponse} "Materialization report"
// @Failure 400 {object} dto.APIResponse "Invalid source or mapping"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign or source not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/recipients/materialize [post]
func (h *MaterializeHandler) Materialize(c fiber.Ctx) error {
	businessID, ok := h.businessID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	campaignID, ok := campaignIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", "INVALID_CAMPAIGN_ID", nil)
	}

	var req dto.MaterializeRecipientsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.BusinessID = businessID
	req.CampaignID = campaignID

	if errs := h.validate(&req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.Materialize(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Materialization failed", "MATERIALIZE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Recipients materialized", result)
}
