package handlers

import (
	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
)

// VariableMappingHandlerInterface defines the contract for variable mapping handlers
type VariableMappingHandlerInterface interface {
	GetMappings(c fiber.Ctx) error
	SaveMappings(c fiber.Ctx) error
}

// VariableMappingHandler handles placeholder binding requests
type VariableMappingHandler struct {
	baseHandler
	flow businessflow.VariableMappingFlow
}

func NewVariableMappingHandler(flow businessflow.VariableMappingFlow) *VariableMappingHandler {
	return &VariableMappingHandler{baseHandler: newBaseHandler(), flow: flow}
}

// GetMappings returns the saved bindings of a campaign
// @Summary Get Variable Mappings
// @Description List the saved placeholder bindings of a campaign, ordered header, body, button
// @Tags Variable Mappings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.VariableMappingsResponse} "Mappings retrieved"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/variable-mappings [get]
func (h *VariableMappingHandler) GetMappings(c fiber.Ctx) error {
	businessID, ok := h.businessID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	campaignID, ok := campaignIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", "INVALID_CAMPAIGN_ID", nil)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.GetMappings(ctx, &dto.GetVariableMappingsRequest{BusinessID: businessID, CampaignID: campaignID})
	if err != nil {
		return h.flowError(c, err, "Failed to retrieve variable mappings", "GET_MAPPINGS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Variable mappings retrieved successfully", result)
}

// SaveMappings replaces the saved bindings of a campaign
// @Summary Save Variable Mappings
// @Description Replace the placeholder bindings of a campaign. Rows absent from the request are removed.
// @Tags Variable Mappings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.SaveVariableMappingsRequest true "Bindings"
// @Success 200 {object} dto.APIResponse{data=dto.VariableMappingsResponse} "Mappings saved"
// @Failure 400 {object} dto.APIResponse "Invalid mapping"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/variable-mappings [put]
func (h *VariableMappingHandler) SaveMappings(c fiber.Ctx) error {
	businessID, ok := h.businessID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	campaignID, ok := campaignIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", "INVALID_CAMPAIGN_ID", nil)
	}

	var req dto.SaveVariableMappingsRequest
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

	result, err := h.flow.SaveMappings(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to save variable mappings", "SAVE_MAPPINGS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Variable mappings saved successfully", result)
}
