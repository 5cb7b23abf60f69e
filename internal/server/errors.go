package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	plandomain "github.com/resumeforge/resumeforge/internal/plan/domain"
	subscriptiondomain "github.com/resumeforge/resumeforge/internal/subscription/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, subscriptiondomain.ErrInvalidUser),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, paymentdomain.ErrChargeDeclined):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_required",
			Message: "charge declined",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictErrorMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, plandomain.ErrPlanInactive),
		errors.Is(err, plandomain.ErrPricingMissing),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, subscriptiondomain.ErrConflict),
		errors.Is(err, subscriptiondomain.ErrWrongDirection),
		errors.Is(err, subscriptiondomain.ErrActiveSubscriptionExists),
		errors.Is(err, subscriptiondomain.ErrPendingChangeAlreadyExists),
		errors.Is(err, subscriptiondomain.ErrNotActive),
		errors.Is(err, subscriptiondomain.ErrCheckoutSessionConsumed):
		return true
	default:
		return false
	}
}

func conflictErrorMessage(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrConflict):
		return "subscription was modified concurrently, retry the request"
	case errors.Is(err, subscriptiondomain.ErrWrongDirection):
		return "requested change goes in the wrong direction for this plan pair"
	case errors.Is(err, subscriptiondomain.ErrActiveSubscriptionExists):
		return "an active subscription already exists"
	case errors.Is(err, subscriptiondomain.ErrPendingChangeAlreadyExists):
		return "a pending plan change already exists, cancel it first"
	case errors.Is(err, subscriptiondomain.ErrNotActive):
		return "subscription is not active"
	case errors.Is(err, subscriptiondomain.ErrCheckoutSessionConsumed):
		return "checkout session already consumed"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, subscriptiondomain.ErrNoPendingChange),
		errors.Is(err, subscriptiondomain.ErrCheckoutSessionNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "plan_not_found", "plan_inactive", "plan_pricing_missing", "same_plan":
		return "plan_id"
	case "invalid_provider":
		return "provider"
	case "invalid_payload", "invalid_event":
		return "payload"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return "request"
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "plan_not_found":
		return "plan does not exist"
	case "plan_inactive":
		return "plan is not open for subscription"
	case "plan_pricing_missing":
		return "plan has no pricing for the resolved region"
	case "same_plan":
		return "already subscribed to this plan"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets handler errors for the request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}
