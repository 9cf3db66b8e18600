// Package config loads service settings from an optional .env file, an optional YAML file
// and environment variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultCollection     = "document_embeddings"

	defaultProviderTimeout = 30 * time.Second
	defaultRefreshInterval = 15 * time.Minute
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Vector   VectorConfig   `yaml:"vector"`
	Storage  StorageConfig  `yaml:"storage"`
	Google   OAuthClient    `yaml:"google"`
	HubSpot  OAuthClient    `yaml:"hubspot"`

	// ProviderTimeout bounds each calendar/CRM HTTP call, e.g. "30s".
	ProviderTimeout string `yaml:"provider_timeout"`
	// RefreshInterval is the period of the background token refresh loop, e.g. "15m".
	RefreshInterval string `yaml:"refresh_interval"`
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          string `yaml:"port"`
	BaseURL       string `yaml:"base_url"`
	AdminPassword string `yaml:"admin_password"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type VectorConfig struct {
	PersistPath string `yaml:"persist_path"`
	Compress    bool   `yaml:"compress"`
	Collection  string `yaml:"collection"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

// OAuthClient holds an external provider's OAuth client and endpoint overrides.
type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	APIBaseURL   string `yaml:"api_base_url"`
}

// Load reads .env (if present), the YAML config file (if found) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// LoadFile decodes a YAML config file into cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("AGENTNEXUS_CONFIG")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/agentnexus.yaml",
		"agentnexus.yaml",
		"/etc/agentnexus/agentnexus.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "agentnexus", "agentnexus.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func applyEnv(cfg *Config) {
	override(&cfg.Server.Host, "HOST")
	override(&cfg.Server.Port, "PORT")
	override(&cfg.Server.BaseURL, "BASE_URL")
	override(&cfg.Server.AdminPassword, "AGENTNEXUS_ADMIN_PASSWORD")
	override(&cfg.Database.Path, "AGENTNEXUS_DB")
	override(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	override(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	override(&cfg.OpenAI.ChatModel, "AGENTNEXUS_MODEL")
	override(&cfg.OpenAI.EmbeddingModel, "AGENTNEXUS_EMBEDDING_MODEL")
	override(&cfg.Vector.PersistPath, "AGENTNEXUS_VECTOR_PATH")
	override(&cfg.Storage.Path, "STORAGE_PATH")
	override(&cfg.Google.ClientID, "GOOGLE_CLIENT_ID")
	override(&cfg.Google.ClientSecret, "GOOGLE_CLIENT_SECRET")
	override(&cfg.HubSpot.ClientID, "HUBSPOT_CLIENT_ID")
	override(&cfg.HubSpot.ClientSecret, "HUBSPOT_CLIENT_SECRET")
	override(&cfg.ProviderTimeout, "AGENTNEXUS_PROVIDER_TIMEOUT")
	override(&cfg.RefreshInterval, "AGENTNEXUS_REFRESH_INTERVAL")
}

func override(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	setDefault(&cfg.Server.Host, "127.0.0.1")
	setDefault(&cfg.Server.Port, "8080")
	setDefault(&cfg.Server.BaseURL, "http://localhost:"+cfg.Server.Port)
	setDefault(&cfg.Database.Path, "agentnexus.db")
	setDefault(&cfg.OpenAI.ChatModel, DefaultChatModel)
	setDefault(&cfg.OpenAI.EmbeddingModel, DefaultEmbeddingModel)
	setDefault(&cfg.Vector.Collection, DefaultCollection)
	setDefault(&cfg.Storage.Path, "./storage")
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// ProviderTimeoutDuration parses ProviderTimeout, falling back to 30s.
func (c *Config) ProviderTimeoutDuration() time.Duration {
	return parseDuration(c.ProviderTimeout, defaultProviderTimeout)
}

// RefreshIntervalDuration parses RefreshInterval, falling back to 15m.
func (c *Config) RefreshIntervalDuration() time.Duration {
	return parseDuration(c.RefreshInterval, defaultRefreshInterval)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
