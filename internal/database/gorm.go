package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"weblast/internal/config"
	"weblast/internal/models"
)

// Open connects to the message log store selected by DB_DRIVER and runs
// migrations. DB_DRIVER=none disables the log and returns a nil DB.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "none", "":
		log.Info().Msg("Message log disabled")
		return nil, nil
	case "sqlite":
		dialector = sqlite.Open(cfg.DBPath)
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("Database initialized successfully (messages, media)")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Message{}, &models.Media{}); err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit logged messages, newest first.
func RecentMessages(db *gorm.DB, runID string, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	q := db.Order("created_at DESC, id DESC").Limit(limit)
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func RecentMedia(db *gorm.DB, runID string, limit int) ([]models.Media, error) {
	items := []models.Media{}
	q := db.Order("uploaded_at DESC, id DESC").Limit(limit)
	if runID != "" {
		q = q.Where("run_id = ?", runID)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
