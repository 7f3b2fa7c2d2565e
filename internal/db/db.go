package db

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"weblog/internal/models"
)

var DB *gorm.DB

// Init connects, migrates and installs DB as the package global.
func Init(dsn string, debug bool) {
	conn, err := Open(dsn, debug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	log.Info().Msg("database connection established")

	if err := Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Msg("database migration completed")
	DB = conn
}

func Open(dsn string, debug bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
}

// Models lists every table, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Tag{},
		&models.PreviousTagName{},
		&models.TagMerge{},
		&models.Series{},
		&models.Entry{},
		&models.Blogmark{},
		&models.Quotation{},
		&models.Note{},
		&models.Beat{},
		&models.Guide{},
		&models.GuideSection{},
		&models.Chapter{},
		&models.ChapterChange{},
		&models.SponsorMessage{},
		&models.Redirect{},
		&models.SubscriberCount{},
		&models.Newsletter{},
	}
}

var extraIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chapters_guide_slug ON chapters (guide_id, slug)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_guide_sections_guide_slug ON guide_sections (guide_id, slug)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_subscriber_counts_daily ON subscriber_counts (path, count, user_agent, created)`,
}

func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return err
	}
	for _, stmt := range extraIndexes {
		if err := conn.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
