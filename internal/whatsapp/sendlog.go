package whatsapp

import (
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"weblast/internal/media"
	"weblast/internal/models"
)

// sendLog records outgoing messages and uploads. A nil db disables it.
type sendLog struct {
	db       *gorm.DB
	runID    string
	clientID string
}

func (l sendLog) outgoing(to, content, msgType string, sendErr error) {
	if l.db == nil {
		return
	}
	row := models.Message{
		RunID:    l.runID,
		ClientID: l.clientID,
		WaID:     to,
		Content:  content,
		Type:     msgType,
		Status:   "sent",
	}
	if sendErr != nil {
		row.Status = "failed"
		row.Error = sendErr.Error()
	}
	if err := l.db.Create(&row).Error; err != nil {
		log.Error().Err(err).Str("run_id", l.runID).Msg("Failed to log outgoing message")
	}
}

func (l sendLog) media(mediaID string, att *media.Attachment) {
	if l.db == nil {
		return
	}
	row := models.Media{
		MediaID:   mediaID,
		RunID:     l.runID,
		SourceURL: att.URL,
		Filename:  att.Filename,
		MimeType:  att.MimeType,
		FileSize:  int64(len(att.Data)),
	}
	if err := l.db.Create(&row).Error; err != nil {
		log.Error().Err(err).Str("media_id", mediaID).Msg("Failed to save media record")
	}
}
