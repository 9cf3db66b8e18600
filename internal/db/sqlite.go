package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(withPragmas(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	// Ensure API key exists (generate on first run)
	ensureAPIKey(db)

	return db, nil
}

// withPragmas enables WAL and a busy timeout so concurrent token refreshes and agent reads
// don't fail with SQLITE_BUSY.
func withPragmas(dbPath string) string {
	if strings.Contains(dbPath, "?") {
		return dbPath
	}
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Config{},
		&models.Connection{},
		&models.Agent{},
		&models.AgentConnection{},
		&models.AgentDocument{},
		&models.Document{},
		&models.ToolCallLog{},
	)
}

// newID returns a fresh primary key.
func newID() string {
	return uuid.New().String()
}

func ensureAPIKey(db *gorm.DB) {
	var config models.Config
	result := db.Where("key = ?", models.ConfigKeyAPIKey).First(&config)

	if result.Error != nil {
		apiKey := generateAPIKey()
		db.Create(&models.Config{
			Key:   models.ConfigKeyAPIKey,
			Value: apiKey,
		})
		log.Printf("🔑 Generated new API key: %s", apiKey)
	}
}

// generateAPIKey returns sk-<32 hex chars>.
func generateAPIKey() string {
	keyBytes := make([]byte, 16)
	rand.Read(keyBytes)
	return "sk-" + hex.EncodeToString(keyBytes)
}

// GetAPIKey retrieves the API key from database
func GetAPIKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", models.ConfigKeyAPIKey).First(&config)
	return config.Value
}

// RegenerateAPIKey creates a new API key
func RegenerateAPIKey(db *gorm.DB) string {
	apiKey := generateAPIKey()
	db.Model(&models.Config{}).Where("key = ?", models.ConfigKeyAPIKey).Update("value", apiKey)
	return apiKey
}
