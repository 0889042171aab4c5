package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	pointsdomain "github.com/smallbiznis/loyalty/internal/points/domain"
	redemptiondomain "github.com/smallbiznis/loyalty/internal/redemption/domain"
	"github.com/smallbiznis/loyalty/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

type errorMapping struct {
	err     error
	status  int
	typ     string
	message string
}

var errorMappings = []errorMapping{
	{ErrInvalidRequest, http.StatusBadRequest, "validation_error", "invalid request"},
	{redemptiondomain.ErrMissingIdempotencyKey, http.StatusBadRequest, "validation_error", "Idempotency-Key header is required"},
	{redemptiondomain.ErrInvalidUser, http.StatusBadRequest, "validation_error", "invalid user"},
	{redemptiondomain.ErrInvalidItem, http.StatusBadRequest, "validation_error", "invalid item"},
	{pagination.ErrInvalidPageToken, http.StatusBadRequest, "validation_error", "invalid page token"},
	{pointsdomain.ErrInvalidUser, http.StatusBadRequest, "validation_error", "invalid user"},
	{redemptiondomain.ErrItemNotFound, http.StatusNotFound, "not_found", "item not found"},
	{redemptiondomain.ErrItemUnavailable, http.StatusUnprocessableEntity, "redemption_rejected", "item is not available"},
	{redemptiondomain.ErrOutOfStock, http.StatusUnprocessableEntity, "redemption_rejected", "item is out of stock"},
	{redemptiondomain.ErrInsufficientPoints, http.StatusUnprocessableEntity, "redemption_rejected", "insufficient points"},
	{redemptiondomain.ErrRedemptionInProgress, http.StatusConflict, "conflict", "redemption with this key is still in progress"},
	{redemptiondomain.ErrIdempotencyKeyReused, http.StatusConflict, "conflict", "idempotency key already used"},
}

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

func mapError(err error) (int, errorPayload) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, errorPayload{Type: m.typ, Message: m.message}
		}
	}
	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

func classifyErrorForLog(err error) (string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.typ, m.err.Error()
		}
	}
	return "internal_error", "internal_error"
}
