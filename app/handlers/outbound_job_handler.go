package handlers

import (
	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/gofiber/fiber/v3"
)

// OutboundJobHandlerInterface defines the contract for outbound job handlers
type OutboundJobHandlerInterface interface {
	Enqueue(c fiber.Ctx) error
	ListJobs(c fiber.Ctx) error
	GetJob(c fiber.Ctx) error
	Retry(c fiber.Ctx) error
	Cancel(c fiber.Ctx) error
}

// OutboundJobHandler handles send queue requests
type OutboundJobHandler struct {
	baseHandler
	flow businessflow.OutboundJobFlow
}

func NewOutboundJobHandler(flow businessflow.OutboundJobFlow) *OutboundJobHandler {
	return &OutboundJobHandler{baseHandler: newBaseHandler(), flow: flow}
}

// Enqueue queues a send job for a campaign
// @Summary Enqueue Outbound Job
// @Description Queue a send job. An active job of the campaign is returned instead unless force_duplicate is set.
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Param request body dto.EnqueueOutboundJobRequest false "Options"
// @Success 201 {object} dto.APIResponse{data=dto.EnqueueOutboundJobResponse} "Job queued"
// @Success 200 {object} dto.APIResponse{data=dto.EnqueueOutboundJobResponse} "Active job returned"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Campaign canceled"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/jobs [post]
func (h *OutboundJobHandler) Enqueue(c fiber.Ctx) error {
	businessID, ok := h.businessID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	campaignID, ok := campaignIDParam(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign ID", "INVALID_CAMPAIGN_ID", nil)
	}

	var req dto.EnqueueOutboundJobRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	req.BusinessID = businessID
	req.CampaignID = campaignID

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.Enqueue(ctx, &req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to enqueue job", "ENQUEUE_FAILED")
	}
	if result.Created {
		return h.SuccessResponse(c, fiber.StatusCreated, "Job queued", result)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Campaign already has an active job", result)
}

// ListJobs lists the jobs of a campaign
// @Summary List Outbound Jobs
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} dto.APIResponse{data=dto.ListOutboundJobsResponse} "Jobs"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/campaigns/{id}/jobs [get]
func (h *OutboundJobHandler) ListJobs(c fiber.Ctx) error {
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

	result, err := h.flow.ListJobs(ctx, &dto.ListOutboundJobsRequest{BusinessID: businessID, CampaignID: campaignID})
	if err != nil {
		return h.flowError(c, err, "Failed to list jobs", "LIST_JOBS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Jobs retrieved successfully", result)
}

func (h *OutboundJobHandler) actionRequest(c fiber.Ctx) (*dto.OutboundJobActionRequest, error) {
	businessID, ok := h.businessID(c)
	if !ok {
		return nil, h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}
	req := &dto.OutboundJobActionRequest{BusinessID: businessID, JobUUID: c.Params("job_uuid")}
	if errs := h.validate(req); errs != nil {
		return nil, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", errs)
	}
	return req, nil
}

// GetJob returns one job
// @Summary Get Outbound Job
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param job_uuid path string true "Job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.OutboundJobResponse} "Job"
// @Failure 400 {object} dto.APIResponse "Invalid job UUID"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Router /api/v1/jobs/{job_uuid} [get]
func (h *OutboundJobHandler) GetJob(c fiber.Ctx) error {
	req, err := h.actionRequest(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.GetJob(ctx, req)
	if err != nil {
		return h.flowError(c, err, "Failed to get job", "GET_JOB_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job retrieved successfully", result)
}

// Retry makes a queued job eligible immediately
// @Summary Retry Outbound Job Now
// @Description Clear the backoff of a queued job
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param job_uuid path string true "Job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.OutboundJobResponse} "Job"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Failure 409 {object} dto.APIResponse "Job is not queued"
// @Router /api/v1/jobs/{job_uuid}/retry [post]
func (h *OutboundJobHandler) Retry(c fiber.Ctx) error {
	req, err := h.actionRequest(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.ForceRetryNow(ctx, req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to retry job", "RETRY_JOB_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job scheduled for immediate retry", result)
}

// Cancel cancels a queued or running job
// @Summary Cancel Outbound Job
// @Description Cancel a job. A running attempt is not interrupted but its outcome is ignored.
// @Tags Jobs
// @Produce json
// @Security BearerAuth
// @Param job_uuid path string true "Job UUID"
// @Success 200 {object} dto.APIResponse{data=dto.OutboundJobResponse} "Job"
// @Failure 404 {object} dto.APIResponse "Job not found"
// @Failure 409 {object} dto.APIResponse "Job already finished"
// @Router /api/v1/jobs/{job_uuid}/cancel [post]
func (h *OutboundJobHandler) Cancel(c fiber.Ctx) error {
	req, err := h.actionRequest(c)
	if req == nil {
		return err
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.Cancel(ctx, req, h.metadata(c))
	if err != nil {
		return h.flowError(c, err, "Failed to cancel job", "CANCEL_JOB_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Job canceled", result)
}
