// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/app/middleware"
	businessflow "github.com/amirphl/Yamata-WABA/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response helpers shared by all handlers
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
		RequestID: requestID(c),
	})
}

func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		RequestID: requestID(c),
	})
}

// requestID prefers the id the requestid middleware generated over the inbound header
func requestID(c fiber.Ctx) string {
	if id := c.GetRespHeader("X-Request-ID"); id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}

// validate returns the human readable validation failures of req, or nil
func (h *baseHandler) validate(req any) []string {
	err := h.validator.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, getValidationErrorMessage(fe))
	}
	return messages
}

func (h *baseHandler) businessID(c fiber.Ctx) (uint, bool) {
	id, ok := c.Locals(middleware.LocalBusinessID).(uint)
	return id, ok && id != 0
}

func (h *baseHandler) metadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	return metadata
}

// requestContext detaches the flow from the fasthttp request context and bounds it
func (h *baseHandler) requestContext(c fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	ctx = context.WithValue(ctx, businessflow.RequestIDKey, c.Get("X-Request-ID"))
	return ctx, cancel
}

// flowError maps business errors onto HTTP statuses
func (h *baseHandler) flowError(c fiber.Ctx, err error, message, code string) error {
	var be *businessflow.BusinessError
	errCode := code
	if errors.As(err, &be) && be.Code != "" {
		errCode = be.Code
	}

	switch {
	case businessflow.IsInvalidWebhookSignature(err):
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid webhook signature", "INVALID_SIGNATURE", nil)
	case errors.Is(err, businessflow.ErrWebhookVerificationFailed):
		return h.ErrorResponse(c, fiber.StatusForbidden, "Webhook verification failed", "VERIFICATION_FAILED", nil)
	case businessflow.IsNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, rootMessage(err), errCode, nil)
	case businessflow.IsValidation(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, rootMessage(err), errCode, err.Error())
	case businessflow.IsInvalidJobTransition(err):
		return h.ErrorResponse(c, fiber.StatusConflict, rootMessage(err), errCode, nil)
	}

	log.Printf("%s: %v", message, err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

func rootMessage(err error) string {
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return err.Error()
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
