package models

import "time"

// ConfigKeyAPIKey holds the API key protecting /api.
const ConfigKeyAPIKey = "api_key"

// Config stores application settings as key/value rows
type Config struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
