// Package config provides YAML-based configuration for the document chat client.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root of the configuration file.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Chat    ChatConfig    `yaml:"chat"`
	Upload  UploadConfig  `yaml:"upload"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                 int    `yaml:"port"`
	BindAddress          string `yaml:"bind_address"`
	EnableCORS           bool   `yaml:"enable_cors"`
	AllowOrigins         string `yaml:"allow_origins"`
	ReadTimeout          int    `yaml:"read_timeout_seconds"`
	WriteTimeout         int    `yaml:"write_timeout_seconds"`
	IdleTimeout          int    `yaml:"idle_timeout_seconds"`
	BodyLimit            string `yaml:"body_limit"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// BackendConfig locates the question-answering and ingestion endpoints.
type BackendConfig struct {
	BaseURL       string `yaml:"base_url"`
	AskPath       string `yaml:"ask_path"`
	UploadURL     string `yaml:"upload_url"`
	AskTimeout    int    `yaml:"ask_timeout_seconds"`
	UploadTimeout int    `yaml:"upload_timeout_seconds"`
}

// ChatConfig names the two participants of a conversation.
type ChatConfig struct {
	UserID        string `yaml:"user_id"`
	UserName      string `yaml:"user_name"`
	ResponderID   string `yaml:"responder_id"`
	ResponderName string `yaml:"responder_name"`
	TimeFormat    string `yaml:"time_format"`
}

// UploadConfig contains document selection and transfer settings.
type UploadConfig struct {
	StagingDirectory string `yaml:"staging_directory"`
	MaxFileSize      string `yaml:"max_file_size"`
	DropDirectory    string `yaml:"drop_directory"`
	AutoSubmitDrops  bool   `yaml:"auto_submit_drops"`
	SniffContent     bool   `yaml:"sniff_content"`
	CloseOnSuccess   bool   `yaml:"close_on_success"`
	CancelOnClose    bool   `yaml:"cancel_on_close"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                 8090,
			BindAddress:          "127.0.0.1",
			EnableCORS:           true,
			AllowOrigins:         "*",
			ReadTimeout:          30,
			WriteTimeout:         30,
			IdleTimeout:          120,
			BodyLimit:            "64M",
			EnableRequestLogging: true,
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8000",
			AskPath:       "/ask",
			AskTimeout:    60,
			UploadTimeout: 300,
		},
		Chat: ChatConfig{
			UserID:        "123",
			UserName:      "You",
			ResponderID:   "pdf-server",
			ResponderName: "Bot",
			TimeFormat:    "03:04 PM",
		},
		Upload: UploadConfig{
			StagingDirectory: "./data/staging",
			MaxFileSize:      "50M",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, writing the defaults first
// when the file does not exist. A .env file next to the working directory is
// loaded before environment overrides are applied.
func LoadConfig(configPath string) (*AppConfig, error) {
	_ = godotenv.Load()

	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Document chat client configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCCHAT_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("DOCCHAT_UPLOAD_URL"); v != "" {
		c.Backend.UploadURL = v
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCCHAT_DROP_DIR"); v != "" {
		c.Upload.DropDirectory = v
	}
}

// resolvePaths converts relative paths to absolute based on config file location.
func (c *AppConfig) resolvePaths(configDir string) {
	if c.Upload.StagingDirectory != "" && !filepath.IsAbs(c.Upload.StagingDirectory) {
		c.Upload.StagingDirectory = filepath.Join(configDir, c.Upload.StagingDirectory)
	}
	if c.Upload.DropDirectory != "" && !filepath.IsAbs(c.Upload.DropDirectory) {
		c.Upload.DropDirectory = filepath.Join(configDir, c.Upload.DropDirectory)
	}
}

// Validate reports every invalid setting at once.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url is required"))
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL))
	}
	if c.Backend.AskTimeout <= 0 {
		errs = append(errs, errors.New("backend.ask_timeout_seconds must be positive"))
	}
	if c.Backend.UploadTimeout <= 0 {
		errs = append(errs, errors.New("backend.upload_timeout_seconds must be positive"))
	}
	if c.Chat.UserID == "" || c.Chat.ResponderID == "" {
		errs = append(errs, errors.New("chat.user_id and chat.responder_id are required"))
	} else if c.Chat.UserID == c.Chat.ResponderID {
		errs = append(errs, errors.New("chat.user_id and chat.responder_id must differ"))
	}
	if _, err := ParseSize(c.Upload.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("upload.max_file_size: %w", err))
	}
	if _, err := ParseSize(c.Server.BodyLimit); err != nil {
		errs = append(errs, fmt.Errorf("server.body_limit: %w", err))
	}

	return errors.Join(errs...)
}

// AskURL returns the question-answering endpoint.
func (c *AppConfig) AskURL() string {
	path := c.Backend.AskPath
	if path == "" {
		path = "/ask"
	}
	return joinURL(c.Backend.BaseURL, path)
}

// UploadURL returns the ingestion endpoint.
func (c *AppConfig) UploadURL() string {
	if c.Backend.UploadURL != "" {
		return c.Backend.UploadURL
	}
	return joinURL(c.Backend.BaseURL, "/upload-pdf")
}

// AskTimeout returns the per-question deadline.
func (c *AppConfig) AskTimeout() time.Duration {
	return time.Duration(c.Backend.AskTimeout) * time.Second
}

// UploadTimeout returns the per-transfer deadline.
func (c *AppConfig) UploadTimeout() time.Duration {
	return time.Duration(c.Backend.UploadTimeout) * time.Second
}

// MaxFileSize returns the staging limit in bytes; 0 means unlimited.
func (c *AppConfig) MaxFileSize() int64 {
	n, _ := ParseSize(c.Upload.MaxFileSize)
	return n
}

// selectOverhead covers the multipart or JSON framing around a selected file.
const selectOverhead = 64 << 10

// RequestBodyLimit returns server.body_limit, raised when a file of
// upload.max_file_size would not fit as base64 JSON. Empty means no limit.
func (c *AppConfig) RequestBodyLimit() string {
	limit, err := ParseSize(c.Server.BodyLimit)
	maxFile := c.MaxFileSize()
	if err != nil || limit == 0 || maxFile == 0 {
		return c.Server.BodyLimit
	}

	need := int64(base64.StdEncoding.EncodedLen(int(maxFile))) + selectOverhead
	if limit >= need {
		return c.Server.BodyLimit
	}
	return fmt.Sprintf("%dK", (need+1023)/1024)
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Upload.StagingDirectory, c.Upload.DropDirectory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// ParseSize parses sizes such as "512K", "64M" or "2G". An empty string is 0.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "B")

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		mult = 1 << 10
	case strings.HasSuffix(s, "M"):
		mult = 1 << 20
	case strings.HasSuffix(s, "G"):
		mult = 1 << 30
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
