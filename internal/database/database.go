package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/AudricHarris/Z-Chat/internal/models"
)

// Connect opens the database connection and runs migrations. Unlike a hard
// dependency, the database is optional here: callers treat an error as
// "degrade to file persistence", not as fatal.
func Connect(dsn string) (*gorm.DB, error) {
	// Configure GORM logger
	customLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: customLogger,
	})
	if err != nil {
		return nil, err
	}

	log.Println("Database connection established.")

	// Run migrations
	if err := db.AutoMigrate(&models.User{}, &models.Message{}); err != nil {
		return nil, err
	}

	log.Println("Database migrated successfully.")
	return db, nil
}
