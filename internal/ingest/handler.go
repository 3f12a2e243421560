package ingest

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mailroom/internal/logger"
	"mailroom/internal/mailparse"
	"mailroom/pkg/errors"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	service *Service
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		service:     service,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		tickets := v1.Group("/tickets")
		{
			tickets.POST("/:ticketId/emails", h.IngestEmail)
		}
	}
}

// IngestEmail accepts one inbound email for a ticket. The body is
// either a JSON EmailRequest or, with Content-Type message/rfc822 or
// application/octet-stream, the raw MIME message itself.
func (h *Handler) IngestEmail(c *gin.Context) {
	ticketID := c.Param("ticketId")
	if ticketID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "ticketId is required")))
		return
	}

	env, err := h.readEnvelope(c)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.service.Process(c.Request.Context(), ticketID, env)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (h *Handler) readEnvelope(c *gin.Context) (mailparse.Envelope, error) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "message/rfc822") || strings.HasPrefix(contentType, "application/octet-stream") {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return mailparse.Envelope{}, errors.Wrap(err, errors.ErrValidation)
		}
		if len(raw) == 0 {
			return mailparse.Envelope{}, errors.ErrValidation.WithDetail("message", "empty request body")
		}
		return mailparse.MIMEEnvelope(raw), nil
	}

	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return mailparse.Envelope{}, errors.ErrValidation.WithCause(err)
	}
	return req.Envelope()
}
