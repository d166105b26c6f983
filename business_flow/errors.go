// Package businessflow contains the core business logic of the outbound campaign pipeline
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Lookup errors
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrCsvBatchNotFound  = errors.New("csv batch not found")
	ErrAudienceNotFound  = errors.New("audience not found")
	ErrContactsNotFound  = errors.New("no contacts found for the given ids")
	ErrJobNotFound       = errors.New("outbound job not found")
	ErrMessageLogMissing = errors.New("message log not found")

	// Validation errors
	ErrTemplateNotResolved   = errors.New("campaign template could not be resolved")
	ErrInvalidMapping        = errors.New("invalid variable mapping")
	ErrInvalidExpression     = errors.New("invalid expression")
	ErrInvalidRowSource      = errors.New("invalid row source")
	ErrAudienceNameRequired  = errors.New("audience name is required when persisting")
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrInvalidExportFormat   = errors.New("invalid export format")
	ErrInvalidThrottleConfig = errors.New("invalid throttle configuration")

	// State errors
	ErrInvalidJobTransition = errors.New("invalid job state transition")
	ErrJobLeaseLost         = errors.New("job lease lost")

	// Webhook errors
	ErrWebhookVerificationFailed = errors.New("webhook verification failed")
	ErrInvalidWebhookSignature   = errors.New("invalid webhook signature")

	ErrCacheNotAvailable = errors.New("cache not available")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

func IsInvalidJobTransition(err error) bool {
	return errors.Is(err, ErrInvalidJobTransition)
}

func IsInvalidMapping(err error) bool {
	return errors.Is(err, ErrInvalidMapping)
}

func IsInvalidWebhookSignature(err error) bool {
	return errors.Is(err, ErrInvalidWebhookSignature)
}

// IsNotFound reports whether err is any lookup failure
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrCsvBatchNotFound) ||
		errors.Is(err, ErrAudienceNotFound) ||
		errors.Is(err, ErrContactsNotFound) ||
		errors.Is(err, ErrJobNotFound)
}

// IsValidation reports whether err is caused by caller input
func IsValidation(err error) bool {
	return errors.Is(err, ErrTemplateNotResolved) ||
		errors.Is(err, ErrInvalidMapping) ||
		errors.Is(err, ErrInvalidExpression) ||
		errors.Is(err, ErrInvalidRowSource) ||
		errors.Is(err, ErrAudienceNameRequired) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidExportFormat) ||
		errors.Is(err, ErrInvalidThrottleConfig)
}
