package models

import (
	"time"
)

// Message is one outgoing send attempt through the channel
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"type:varchar(64);index" json:"run_id"`
	ClientID  string    `gorm:"type:varchar(64)" json:"client_id"`
	WaID      string    `gorm:"index;not null" json:"wa_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Type      string    `gorm:"type:varchar(50)" json:"type"`
	Status    string    `gorm:"type:varchar(20)" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Media represents an uploaded attachment
type Media struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MediaID    string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"media_id"`
	RunID      string    `gorm:"type:varchar(64);index" json:"run_id"`
	SourceURL  string    `gorm:"type:text" json:"source_url"`
	Filename   string    `gorm:"type:varchar(255)" json:"filename"`
	MimeType   string    `gorm:"type:varchar(100)" json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}

func (Media) TableName() string {
	return "media"
}
