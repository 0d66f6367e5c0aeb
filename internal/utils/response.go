package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type Meta struct {
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	Total      int64           `json:"total,omitempty"`
	Count      int             `json:"count,omitempty"`
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func SuccessResponseWithMeta(c *gin.Context, message string, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, APIResponse{
		Status:    StatusSuccess,
		Message:   message,
		Data:      data,
		Meta:      meta,
		Timestamp: time.Now(),
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now(),
	})
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func UnauthorizedResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", ErrUnauthorized)
}

func ForbiddenResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", ErrForbidden)
}

func NotFoundResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusNotFound, "NOT_FOUND", ErrResourceNotFound)
}

func ValidationErrorResponse(c *gin.Context, details map[string]string) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Status: StatusError,
		Error: &APIError{
			Code:    "VALIDATION_ERROR",
			Message: ErrValidationFailed,
			Details: details,
		},
		Timestamp: time.Now(),
	})
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", ErrInternalServer)
}

// DomainErrorResponse maps the typed error model onto HTTP statuses.
func DomainErrorResponse(c *gin.Context, err error) {
	var (
		ve *ValidationError
		ce *ConflictError
		pe *PermissionError
		re *RetryableError
		pr *PassengersRemainingError
	)

	switch {
	case errors.As(err, &ve):
		ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error())
	case errors.As(err, &pr):
		ids := make([]string, len(pr.BookingIDs))
		for i, id := range pr.BookingIDs {
			ids[i] = id.Hex()
		}
		c.JSON(http.StatusConflict, APIResponse{
			Status: StatusError,
			Error: &APIError{
				Code:    "PASSENGERS_REMAINING",
				Message: "Ride cannot be completed while passengers are outstanding",
			},
			Data:      gin.H{"outstanding_booking_ids": ids},
			Timestamp: time.Now(),
		})
	case errors.As(err, &ce):
		ErrorResponse(c, http.StatusConflict, "CONFLICT", ce.Error())
	case errors.As(err, &pe):
		ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", pe.Error())
	case errors.As(err, &re):
		ErrorResponse(c, http.StatusServiceUnavailable, "RETRY_EXHAUSTED", re.Error())
	case errors.Is(err, ErrNotFound):
		NotFoundResponse(c)
	default:
		InternalServerErrorResponse(c)
	}
}
