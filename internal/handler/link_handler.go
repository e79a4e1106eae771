package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qwamber/qwala-go/internal/models"
	"github.com/qwamber/qwala-go/internal/repository"
	"github.com/qwamber/qwala-go/internal/service"
	"go.uber.org/zap"
)

// Коды ошибок в ответах API
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidLongLink    = "INVALID_LONG_LINK"
	CodeInvalidShortLinkID = "INVALID_SHORT_LINK_ID"
	CodeShortLinkIDTaken   = "SHORT_LINK_ID_TAKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeStatisticsHidden   = "STATISTICS_HIDDEN"
	CodeInternal           = "INTERNAL_ERROR"
)

type LinkHandler struct {
	service service.LinkService
	logger  *zap.Logger
}

func NewLinkHandler(service service.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		service: service,
		logger:  logger,
	}
}

type ShortenRequest struct {
	LongLink          string  `json:"longLink" binding:"required"`
	IsWords           *bool   `json:"isWords"`
	ExpiryDate        *int64  `json:"expiryDate"`
	HideStatistics    *bool   `json:"hideStatistics"`
	CustomShortLinkID *string `json:"customShortLinkID"`
}

type ShortenResponse struct {
	ShortLinkID string `json:"shortLinkID"`
}

type LengthenResponse struct {
	LongLink string `json:"longLink"`
}

type StatisticsResponse struct {
	Views []models.View `json:"views"`
}

// ErrorDetail вложенный объект ошибки: {"error": {"code": "...", "message": "..."}}
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// Shorten обрабатывает POST /api/shorten
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		h.abort(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	input := &models.CreateLinkInput{
		LongLink: req.LongLink,
	}
	if req.IsWords != nil {
		input.IsWords = *req.IsWords
	}
	if req.HideStatistics != nil {
		input.HideStatistics = *req.HideStatistics
	}
	if req.ExpiryDate != nil {
		expiresAt := time.Unix(*req.ExpiryDate, 0).UTC()
		input.ExpiresAt = &expiresAt
	}
	if req.CustomShortLinkID != nil {
		input.CustomShortLinkID = *req.CustomShortLinkID
	}

	link, err := h.service.CreateLink(c.Request.Context(), input)
	if err != nil {
		h.logger.Warn("Failed to create link", zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, ShortenResponse{ShortLinkID: link.ShortLinkID})
}

// Lengthen обрабатывает GET /api/lengthen?shortLinkID=...
func (h *LinkHandler) Lengthen(c *gin.Context) {
	shortLinkID := c.Query("shortLinkID")
	if shortLinkID == "" {
		h.abort(c, http.StatusBadRequest, CodeInvalidRequest, "shortLinkID is required")
		return
	}

	link, err := h.service.Lengthen(c.Request.Context(), shortLinkID, c.ClientIP())
	if err != nil {
		h.logger.Debug("Failed to lengthen link", zap.String("short_link_id", shortLinkID), zap.Error(err))
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, LengthenResponse{LongLink: link.LongLink})
}

// Statistics обрабатывает GET /api/statistics?shortLinkID=...
func (h *LinkHandler) Statistics(c *gin.Context) {
	shortLinkID := c.Query("shortLinkID")
	if shortLinkID == "" {
		h.abort(c, http.StatusBadRequest, CodeInvalidRequest, "shortLinkID is required")
		return
	}

	views, err := h.service.GetViews(c.Request.Context(), shortLinkID)
	if err != nil {
		h.logger.Debug("Failed to get statistics", zap.String("short_link_id", shortLinkID), zap.Error(err))
		h.fail(c, err)
		return
	}

	if views == nil {
		views = []models.View{}
	}

	c.JSON(http.StatusOK, StatisticsResponse{Views: views})
}

// fail переводит ошибку сервиса в HTTP-ответ
func (h *LinkHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidLongLink):
		h.abort(c, http.StatusBadRequest, CodeInvalidLongLink, "longLink must be an http(s) URL")
	case errors.Is(err, service.ErrInvalidShortLinkID):
		h.abort(c, http.StatusBadRequest, CodeInvalidShortLinkID, "customShortLinkID must be 1-64 characters of [a-zA-Z0-9_-]")
	case errors.Is(err, repository.ErrCodeExists):
		h.abort(c, http.StatusConflict, CodeShortLinkIDTaken, "")
	case errors.Is(err, repository.ErrLinkNotFound):
		h.abort(c, http.StatusNotFound, CodeNotFound, "")
	case errors.Is(err, service.ErrStatisticsHidden):
		h.abort(c, http.StatusForbidden, CodeStatisticsHidden, "")
	default:
		h.logger.Error("Internal error", zap.Error(err))
		h.abort(c, http.StatusInternalServerError, CodeInternal, "")
	}
}

func (h *LinkHandler) abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
