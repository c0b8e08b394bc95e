package handler

import (
	"net/http"

	"github.com/custody-ledger/internal/ops_api/middleware"
	"github.com/gin-gonic/gin"
)

// Response is the envelope of every JSON answer
type Response struct {
	Data          any        `json:"data,omitempty"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	Meta          *MetaInfo  `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MetaInfo struct {
	Page       int   `json:"page,omitempty"`
	PerPage    int   `json:"per_page,omitempty"`
	TotalPages int64 `json:"total_pages,omitempty"`
	TotalItems int64 `json:"total_items,omitempty"`
}

func newPaginationMeta(page, perPage int, totalItems int64) *MetaInfo {
	totalPages := totalItems / int64(perPage)
	if totalItems%int64(perPage) > 0 {
		totalPages++
	}
	return &MetaInfo{
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
		TotalItems: totalItems,
	}
}

func respond(c *gin.Context, statusCode int, response *Response) {
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

func RespondOK(c *gin.Context, data any) {
	respond(c, http.StatusOK, &Response{Data: data})
}

// RespondAccepted answers 202: the command is queued, not yet applied
func RespondAccepted(c *gin.Context, data any) {
	respond(c, http.StatusAccepted, &Response{Data: data})
}

func RespondPage(c *gin.Context, data any, page, perPage int, totalItems int64) {
	respond(c, http.StatusOK, &Response{Data: data, Meta: newPaginationMeta(page, perPage, totalItems)})
}

func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, &Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, "NOT_FOUND", message)
}

// RespondUnavailable is used when the command bus refused a write
func RespondUnavailable(c *gin.Context, message string) {
	RespondWithError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An internal server error occurred")
}
