package handlers

import (
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/amirphl/Yamata-WABA/utils"
	"github.com/gofiber/fiber/v3"
)

const defaultSnapshotDays = 30

// BillingHandlerInterface defines the contract for billing report handlers
type BillingHandlerInterface interface {
	GetSnapshot(c fiber.Ctx) error
}

// BillingHandler serves billing snapshots
type BillingHandler struct {
	baseHandler
	flow businessflow.BillingReportFlow
}

func NewBillingHandler(flow businessflow.BillingReportFlow) *BillingHandler {
	return &BillingHandler{baseHandler: newBaseHandler(), flow: flow}
}

// parseTimeParam accepts RFC3339 or a plain UTC date
func parseTimeParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}

// GetSnapshot aggregates the billing ledger over a range
// @Summary Billing Snapshot
// @Description Message volume, conversation windows, categories and spend per currency. Defaults to the last 30 days.
// @Tags Billing
// @Produce json
// @Security BearerAuth
// @Param from query string false "Range start, RFC3339 or YYYY-MM-DD"
// @Param to query string false "Range end (exclusive), RFC3339 or YYYY-MM-DD"
// @Success 200 {object} dto.APIResponse{data=dto.BillingSnapshotResponse} "Snapshot"
// @Failure 400 {object} dto.APIResponse "Invalid range"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/billing/snapshot [get]
func (h *BillingHandler) GetSnapshot(c fiber.Ctx) error {
	businessID, ok := h.businessID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Business ID not found in context", "MISSING_BUSINESS_ID", nil)
	}

	from, to := businessflow.DefaultSnapshotRange(utils.UTCNow(), defaultSnapshotDays)
	if raw := c.Query("from"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid from", "INVALID_FROM", err.Error())
		}
		from = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid to", "INVALID_TO", err.Error())
		}
		to = t
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.flow.GetSnapshot(ctx, &dto.BillingSnapshotRequest{BusinessID: businessID, From: from, To: to})
	if err != nil {
		return h.flowError(c, err, "Failed to build billing snapshot", "BILLING_SNAPSHOT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Billing snapshot built", result)
}
