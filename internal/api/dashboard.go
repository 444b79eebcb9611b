package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblast/internal/database"
)

const defaultMessageLimit = 100

type DashboardHandler struct {
	DB *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{DB: db}
}

// GetMessages lists logged sends, newest first. Optional query params:
// run_id and limit.
func (h *DashboardHandler) GetMessages(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Message log disabled"})
		return
	}

	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	messages, err := database.RecentMessages(h.DB, c.Query("run_id"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error reading message log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// ListMedia lists uploaded attachments, newest first.
func (h *DashboardHandler) ListMedia(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Message log disabled"})
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	items, err := database.RecentMedia(h.DB, c.Query("run_id"), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error reading media log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, items)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultMessageLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return 0, false
	}
	return n, true
}
