package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"weblast/internal/dispatch"
	"weblast/internal/recipient"
)

// Blaster runs one blast end to end.
type Blaster interface {
	Blast(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

type BlastHandler struct {
	Service Blaster
}

func NewBlastHandler(service Blaster) *BlastHandler {
	return &BlastHandler{Service: service}
}

type BlastRequest struct {
	RecipientData json.RawMessage `json:"recipientData"`
	TemplateText  string          `json:"templateText"`
}

func (h *BlastHandler) Blast(c *gin.Context) {
	var req BlastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipientData"})
		return
	}

	payload, err := recipient.ParsePayload(req.RecipientData)
	if errors.Is(err, recipient.ErrInvalidPayload) {
		log.Warn().Err(err).Msg("Rejecting blast request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipientData"})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// The run outlives a dropped client connection.
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.Service.Blast(ctx, dispatch.Request{Payload: payload, TemplateText: req.TemplateText})
	if err != nil {
		log.Error().Err(err).Msg("Blast failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func Healthz(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

