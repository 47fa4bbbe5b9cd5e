package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start the farmsense client.
type Profile struct {
	// Backend configuration
	BackendURL     string // Base URL of the farm backend API
	RequestTimeout int    // Backend request timeout in seconds (default: 30)

	// Assistant configuration
	// "native" speaks the backend's documented contents/parts protocol;
	// any other provider is OpenAI-compatible and routed through go-openai.
	AIProvider string // native, openai, siliconflow, ollama
	AIAPIKey   string // Assistant API key
	AIBaseURL  string // Assistant base URL (optional, has default per provider)
	AIModel    string // Model name
	AITimeout  int    // Assistant request timeout in seconds (default: 60)

	// Session configuration
	MessageLimit int // Max user messages per session (default: 10)

	// Other configurations
	Mode    string // dev, prod, demo
	Data    string // Data directory for local storage
	DSN     string // SQLite DSN, derived from Data when empty
	Version string
}

// Provider default configurations for the assistant endpoint.
// Used when AI_BASE_URL is not explicitly set.
var aiProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"native": {
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-2.0-flash",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-7B-Instruct",
	},
	"ollama": {
		BaseURL: "http://localhost:11434",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an assistant API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.BackendURL = getEnvOrDefault("FARMSENSE_BACKEND_URL", p.BackendURL)
	p.RequestTimeout = getEnvOrDefaultInt("FARMSENSE_REQUEST_TIMEOUT_SECONDS", 30)

	p.AIProvider = getEnvOrDefault("FARMSENSE_AI_PROVIDER", "native")
	p.AIAPIKey = getEnvOrDefault("FARMSENSE_AI_API_KEY", "")
	p.AIBaseURL = getEnvOrDefault("FARMSENSE_AI_BASE_URL", "")
	p.AIModel = getEnvOrDefault("FARMSENSE_AI_MODEL", "")
	p.AITimeout = getEnvOrDefaultInt("FARMSENSE_AI_TIMEOUT_SECONDS", 60)

	p.MessageLimit = getEnvOrDefaultInt("FARMSENSE_MESSAGE_LIMIT", 10)

	// Validate and apply provider defaults if not explicitly set
	if p.AIProvider != "" {
		if _, ok := aiProviderDefaults[p.AIProvider]; !ok {
			slog.Warn("Unknown assistant provider, using default: native", "provider", p.AIProvider)
			p.AIProvider = "native"
		}
	}
	if p.AIBaseURL == "" || p.AIModel == "" {
		if defaults, ok := aiProviderDefaults[p.AIProvider]; ok {
			if p.AIBaseURL == "" {
				p.AIBaseURL = defaults.BaseURL
			}
			if p.AIModel == "" {
				p.AIModel = defaults.Model
			}
		}
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.BackendURL == "" {
		return errors.New("backend url required")
	}
	p.BackendURL = strings.TrimRight(p.BackendURL, "/")

	if p.MessageLimit <= 0 {
		p.MessageLimit = 10
	}

	if p.Data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to resolve home directory")
		}
		p.Data = filepath.Join(home, ".farmsense")
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0700); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	if p.DSN == "" {
		dbFile := fmt.Sprintf("farmsense_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
