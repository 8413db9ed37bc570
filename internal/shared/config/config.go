package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	MaxUploadBytes  int64

	B2KeyID          string
	B2ApplicationKey string
	B2BucketName     string

	AnalysisEndpoint     string
	AnalysisKey          string
	AnalysisAPIVersion   string
	AnalysisAnalyzerName string
	AnalysisPollInterval time.Duration
	AnalysisMaxPolls     int
	AnalysisHTTPTimeout  time.Duration

	ConstrueEndpoint string
	ConstrueKey      string

	DatabaseURL string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	_ = godotenv.Load(".env", "cmd/.env")

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             normalizeEnv(getEnv("ENV", "dev")),
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:8000")),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),

		B2KeyID:          getEnv("B2_KEY_ID", ""),
		B2ApplicationKey: getEnv("B2_APPLICATION_KEY", ""),
		B2BucketName:     getEnv("B2_BUCKET_NAME", ""),

		AnalysisEndpoint:     strings.TrimRight(getEnv("ANALYSIS_ENDPOINT", ""), "/"),
		AnalysisKey:          getEnv("ANALYSIS_KEY", ""),
		AnalysisAPIVersion:   getEnv("ANALYSIS_API_VERSION", ""),
		AnalysisAnalyzerName: getEnv("ANALYSIS_ANALYZER_NAME", ""),
		AnalysisPollInterval: getEnvDuration("ANALYSIS_POLL_INTERVAL", 2*time.Second),
		AnalysisMaxPolls:     getEnvInt("ANALYSIS_MAX_POLLS", 60),
		AnalysisHTTPTimeout:  getEnvDuration("ANALYSIS_HTTP_TIMEOUT", 300*time.Second),

		ConstrueEndpoint: strings.TrimRight(getEnv("CONSTRUE_ENDPOINT", ""), "/"),
		ConstrueKey:      getEnv("CONSTRUE_KEY", ""),

		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

func getEnvInt64(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val <= 0 {
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil || val < 0 {
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}
