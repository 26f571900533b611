package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"NOCDASH_ADDR", "NOCDASH_CORS_ORIGINS", "NOCDASH_SHUTDOWN_TIMEOUT",
	"NOCDASH_DB_PATH", "NOCDASH_PROFILE", "NOCDASH_RULES_PATH",
	"NOCDASH_MODEL_PATH", "NOCDASH_SCALER_PATH", "NOCDASH_ORT_LIB",
	"NOCDASH_LLM_API_KEY", "NOCDASH_LLM_ENDPOINT", "NOCDASH_LLM_MODEL", "NOCDASH_LLM_TIMEOUT",
	"NOCDASH_USERS_PATH", "NOCDASH_JWT_SECRET", "NOCDASH_TOKEN_TTL",
	"NOCDASH_VERBOSITY", "NOCDASH_ARCHIVE_PATH", "NOCDASH_ARCHIVE_MAX_BYTES",
	"NOCDASH_WEBHOOK_URL", "NOCDASH_WEBHOOK_TOKEN",
	"NOCDASH_MQTT_BROKER", "NOCDASH_MQTT_TOPIC", "NOCDASH_MQTT_USERNAME", "NOCDASH_MQTT_PASSWORD",
	"NOCDASH_INFLUX_URL", "NOCDASH_INFLUX_TOKEN", "NOCDASH_INFLUX_ORG", "NOCDASH_INFLUX_BUCKET",
	"NOCDASH_OUTPUT_STDOUT", "NOCDASH_OUTPUT_PRETTY",
	"NOCDASH_LOG_LEVEL", "NOCDASH_LOG_FORMAT",
}

// clearEnv unsets every nocdash variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadWithDotenv("")

	if cfg.Server.Addr != ":8501" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.DBPath != "system_reports.db" {
		t.Fatalf("DBPath = %q", cfg.Store.DBPath)
	}
	if cfg.Engine.Profile != "noc" || cfg.Engine.ModelPath != "models/noc.onnx" || cfg.Engine.ScalerPath != "models/noc_scaler.json" {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.LLM.Endpoint != "https://api.openai.com/v1" || cfg.LLM.Model != "gpt-4o-mini" || cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Auth.Enabled() {
		t.Fatal("auth should be disabled without a users file")
	}
	if cfg.Output.MQTTTopic != "nocdash/reports" || cfg.Output.Verbosity != "standard" || cfg.Output.Stdout {
		t.Fatalf("unexpected output defaults: %+v", cfg.Output)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Server.CORSOrigins != nil {
		t.Fatalf("expected no CORS origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCDASH_LLM_TIMEOUT", "5s")
	t.Setenv("NOCDASH_CORS_ORIGINS", "http://a.example, ,http://b.example")
	t.Setenv("NOCDASH_ARCHIVE_MAX_BYTES", "1048576")
	t.Setenv("NOCDASH_OUTPUT_STDOUT", "true")
	t.Setenv("NOCDASH_PROFILE", "power")

	cfg := LoadWithDotenv("")

	if cfg.LLM.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "http://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Output.ArchiveMaxBytes != 1<<20 {
		t.Errorf("ArchiveMaxBytes = %d", cfg.Output.ArchiveMaxBytes)
	}
	if !cfg.Output.Stdout {
		t.Error("Stdout should be true")
	}
	if cfg.Engine.Profile != "power" {
		t.Errorf("Profile = %q", cfg.Engine.Profile)
	}
}

func TestLoad_Dotenv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("NOCDASH_LLM_API_KEY=from-file\nNOCDASH_LLM_MODEL=file-model\n"), 0o600)
	t.Setenv("NOCDASH_LLM_MODEL", "from-env")
	t.Cleanup(func() { os.Unsetenv("NOCDASH_LLM_API_KEY") })

	cfg := LoadWithDotenv(path)

	if cfg.LLM.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "from-env" {
		t.Errorf("Model = %q, existing env should win", cfg.LLM.Model)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCDASH_LLM_TIMEOUT", "soon")
	t.Setenv("NOCDASH_ARCHIVE_MAX_BYTES", "lots")
	t.Setenv("NOCDASH_OUTPUT_STDOUT", "maybe")

	cfg := LoadWithDotenv("")
	if cfg.LLM.Timeout != 30*time.Second || cfg.Output.ArchiveMaxBytes != 0 || cfg.Output.Stdout {
		t.Fatalf("bad values should fall back to defaults: %+v %+v", cfg.LLM, cfg.Output)
	}
}

// --- Validate tests ---

func validConfig(t *testing.T) Config {
	t.Helper()
	clearEnv(t)
	cfg := LoadWithDotenv("")
	cfg.LLM.APIKey = "sk-test"
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected nil error for valid config, got: %v", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.APIKey = " "
	err := cfg.Validate()
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigurationError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "NOCDASH_LLM_API_KEY") {
		t.Fatalf("expected error to mention NOCDASH_LLM_API_KEY, got: %v", err)
	}
}

func TestValidate_Auth(t *testing.T) {
	cfg := validConfig(t)
	cfg.Auth.UsersPath = filepath.Join(t.TempDir(), "missing.json")
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"users file", "NOCDASH_JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %q, got: %v", want, err)
		}
	}

	users := filepath.Join(t.TempDir(), "users.json")
	os.WriteFile(users, []byte(`{"users":[]}`), 0o600)
	cfg.Auth.UsersPath = users
	cfg.Auth.JWTSecret = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid auth config, got %v", err)
	}
}

func TestValidate_Influx(t *testing.T) {
	cfg := validConfig(t)
	cfg.Output.InfluxURL = "http://localhost:8086"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "NOCDASH_INFLUX_TOKEN") {
		t.Fatalf("expected influx error, got %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.LLM.APIKey = ""
	cfg.LLM.Timeout = 0
	cfg.Output.Verbosity = "loud"
	cfg.Log.Format = "xml"
	cfg.Engine.RulesPath = "/nonexistent/rules.yaml"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple bad fields")
	}
	msg := err.Error()
	for _, want := range []string{"NOCDASH_LLM_API_KEY", "timeout", "verbosity", "log format", "rules file"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got: %v", want, msg)
		}
	}
}

func TestGetenvInt(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int
		want     int
	}{
		{"empty uses fallback", "", 1000, 1000},
		{"valid int", "500", 1000, 500},
		{"zero", "0", 1000, 0},
		{"invalid falls back", "abc", 1000, 1000},
		{"negative", "-1", 1000, -1},
	}

	const key = "NOCDASH_TEST_GETENVINT"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.envVal)
			if got := getenvInt(key, tt.fallback); got != tt.want {
				t.Errorf("getenvInt(%q) = %d, want %d", tt.envVal, got, tt.want)
			}
		})
	}
}
