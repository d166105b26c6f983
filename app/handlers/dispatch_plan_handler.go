package handlers

import (
	"fmt"

	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DispatchPlanHandlerInterface defines the contract for dispatch plan handlers
type DispatchPlanHandlerInterface interface {
	GetPlan(c fiber.Ctx) error
	ExportPlan(c fiber.Ctx) error
}

// DispatchPlanHandler serves throttled send plans
type DispatchPlanHandler struct {
	baseHandler
	flow businessflow.DispatchPlanFlow
}

func NewDispatchPlanHandler(flow businessflow.DispatchPlanFlow) *DispatchPlanHandler {
	return &DispatchPlanHandler{baseHandler: newBaseHandler(), flow: flow}
}

func (h *DispatchPlanHandler) planRequest(c fiber.Ctx) (*dto.DispatchPlanRequest, error) {
	businessID, ok := h.businessID(c)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	campaignID, ok := campaignIDParam(c)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", "INVALID_CAMPAIGN_ID", nil)
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok || limit < 0 {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid limit", "INVALID_LIMIT", nil)
	}
	return &dto.DispatchPlanRequest{BusinessID: businessID, CampaignID: campaignID, Limit: limit}, nil
}

// GetPlan returns the batch schedule of the pending recipients
// @Summary Get Dispatch Plan
// @Description Split pending recipients into throttled batches with advisory offsets
// @Tags Dispatch
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param limit query int false "Plan only the first N recipients"
// @Success 200 {object} dto.APIResponse{data=dto.DispatchPlanResponse} "Plan"
// @Failure 400 {object} dto.APIResponse "Invalid throttle or limit"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/dispatch-plan [get]
func (h *DispatchPlanHandler) GetPlan(c fiber.Ctx) error {
	req, err := h.planRequest(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.GetPlan(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to build dispatch plan", "DISPATCH_PLAN_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Dispatch plan built", result)
}

// ExportPlan downloads the plan as csv or xlsx
// @Summary Export Dispatch Plan
// @Description Download the dispatch plan as a spreadsheet
// @Tags Dispatch
// @Produce octet-stream
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param format query string true "csv or xlsx"
// @Param limit query int false "Plan only the first N recipients"
// @Success 200 {file} file "Plan file"
// @Failure 400 {object} dto.APIResponse "Invalid format"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/dispatch-plan/export [get]
func (h *DispatchPlanHandler) ExportPlan(c fiber.Ctx) error {
	planReq, err := h.planRequest(c)
	if planReq == nil {
		return err
	}

	req := &dto.ExportDispatchPlanRequest{DispatchPlanRequest: *planReq, Format: c.Query("format")}
	if errs := h.validate(req); errs != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.ExportPlan(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to export dispatch plan", "DISPATCH_PLAN_EXPORT_FAILED")
	}

	c.Set(fiber.HeaderContentType, result.ContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, result.FileName))
	return c.Status(fiber.StatusOK).Send(result.Content)
}
