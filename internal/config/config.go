package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all nocdash configuration.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Engine EngineConfig
	LLM    LLMConfig
	Auth   AuthConfig
	Output OutputConfig
	Log    LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// StoreConfig holds report store settings.
type StoreConfig struct {
	DBPath string
}

// EngineConfig holds evaluator and classifier settings.
type EngineConfig struct {
	Profile    string // default profile for new sessions
	RulesPath  string // optional YAML rule overrides
	ModelPath  string
	ScalerPath string
	ORTLib     string // empty = libonnxruntime.so next to the model
}

// LLMConfig holds Q&A endpoint settings.
type LLMConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// AuthConfig holds login settings. Auth is disabled when UsersPath is empty.
type AuthConfig struct {
	UsersPath string
	JWTSecret string
	TokenTTL  time.Duration
}

// Enabled reports whether login is required.
func (a AuthConfig) Enabled() bool {
	return a.UsersPath != ""
}

// OutputConfig holds report sink settings. Every sink is optional.
type OutputConfig struct {
	Verbosity string // "minimal", "standard", "full"

	ArchivePath     string
	ArchiveMaxBytes int64

	WebhookURL   string
	WebhookToken string

	MQTTBroker   string
	MQTTTopic    string
	MQTTUsername string
	MQTTPassword string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	Stdout bool
	Pretty bool
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// ConfigurationError reports configuration that prevents startup.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present; variables
// already set in the environment win.
func Load() Config {
	return LoadWithDotenv(".env")
}

// LoadWithDotenv is Load with an explicit .env path.
func LoadWithDotenv(path string) Config {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}

	return Config{
		Server: ServerConfig{
			Addr:            getenv("NOCDASH_ADDR", ":8501"),
			CORSOrigins:     getenvList("NOCDASH_CORS_ORIGINS"),
			ShutdownTimeout: getenvDuration("NOCDASH_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			DBPath: getenv("NOCDASH_DB_PATH", "system_reports.db"),
		},
		Engine: EngineConfig{
			Profile:    getenv("NOCDASH_PROFILE", "noc"),
			RulesPath:  os.Getenv("NOCDASH_RULES_PATH"),
			ModelPath:  getenv("NOCDASH_MODEL_PATH", "models/noc.onnx"),
			ScalerPath: getenv("NOCDASH_SCALER_PATH", "models/noc_scaler.json"),
			ORTLib:     os.Getenv("NOCDASH_ORT_LIB"),
		},
		LLM: LLMConfig{
			APIKey:   os.Getenv("NOCDASH_LLM_API_KEY"),
			Endpoint: getenv("NOCDASH_LLM_ENDPOINT", "https://api.openai.com/v1"),
			Model:    getenv("NOCDASH_LLM_MODEL", "gpt-4o-mini"),
			Timeout:  getenvDuration("NOCDASH_LLM_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			UsersPath: os.Getenv("NOCDASH_USERS_PATH"),
			JWTSecret: os.Getenv("NOCDASH_JWT_SECRET"),
			TokenTTL:  getenvDuration("NOCDASH_TOKEN_TTL", 12*time.Hour),
		},
		Output: OutputConfig{
			Verbosity:       getenv("NOCDASH_VERBOSITY", "standard"),
			ArchivePath:     os.Getenv("NOCDASH_ARCHIVE_PATH"),
			ArchiveMaxBytes: int64(getenvInt("NOCDASH_ARCHIVE_MAX_BYTES", 0)),
			WebhookURL:      os.Getenv("NOCDASH_WEBHOOK_URL"),
			WebhookToken:    os.Getenv("NOCDASH_WEBHOOK_TOKEN"),
			MQTTBroker:      os.Getenv("NOCDASH_MQTT_BROKER"),
			MQTTTopic:       getenv("NOCDASH_MQTT_TOPIC", "nocdash/reports"),
			MQTTUsername:    os.Getenv("NOCDASH_MQTT_USERNAME"),
			MQTTPassword:    os.Getenv("NOCDASH_MQTT_PASSWORD"),
			InfluxURL:       os.Getenv("NOCDASH_INFLUX_URL"),
			InfluxToken:     os.Getenv("NOCDASH_INFLUX_TOKEN"),
			InfluxOrg:       os.Getenv("NOCDASH_INFLUX_ORG"),
			InfluxBucket:    os.Getenv("NOCDASH_INFLUX_BUCKET"),
			Stdout:          getenvBool("NOCDASH_OUTPUT_STDOUT", false),
			Pretty:          getenvBool("NOCDASH_OUTPUT_PRETTY", false),
		},
		Log: LogConfig{
			Level:  getenv("NOCDASH_LOG_LEVEL", "info"),
			Format: getenv("NOCDASH_LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the configuration and returns a *ConfigurationError
// listing every problem, or nil.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, errors.New("NOCDASH_LLM_API_KEY is required"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm timeout must be positive, got %v", c.LLM.Timeout))
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if strings.TrimSpace(c.Store.DBPath) == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if strings.TrimSpace(c.Engine.Profile) == "" {
		errs = append(errs, errors.New("default profile is empty"))
	}
	if c.Engine.RulesPath != "" {
		if _, err := os.Stat(c.Engine.RulesPath); err != nil {
			errs = append(errs, fmt.Errorf("rules file: %w", err))
		}
	}

	switch c.Output.Verbosity {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("verbosity must be minimal, standard or full, got %q", c.Output.Verbosity))
	}
	if c.Output.ArchiveMaxBytes < 0 {
		errs = append(errs, fmt.Errorf("archive max bytes must be >= 0, got %d", c.Output.ArchiveMaxBytes))
	}
	if c.Output.InfluxURL != "" && (c.Output.InfluxToken == "" || c.Output.InfluxOrg == "" || c.Output.InfluxBucket == "") {
		errs = append(errs, errors.New("NOCDASH_INFLUX_URL requires NOCDASH_INFLUX_TOKEN, NOCDASH_INFLUX_ORG and NOCDASH_INFLUX_BUCKET"))
	}

	if c.Auth.Enabled() {
		if _, err := os.Stat(c.Auth.UsersPath); err != nil {
			errs = append(errs, fmt.Errorf("users file: %w", err))
		}
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			errs = append(errs, errors.New("NOCDASH_JWT_SECRET is required when NOCDASH_USERS_PATH is set"))
		}
		if c.Auth.TokenTTL <= 0 {
			errs = append(errs, fmt.Errorf("token ttl must be positive, got %v", c.Auth.TokenTTL))
		}
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return &ConfigurationError{Err: errors.Join(errs...)}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getenvList splits a comma-separated variable, dropping blanks.
func getenvList(key string) []string {
	var out []string
	for _, s := range strings.Split(os.Getenv(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
