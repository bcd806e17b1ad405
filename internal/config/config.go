package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth — tokens are issued by an external identity provider,
	// we only verify them
	JWTSecret string

	// AI provider (OpenAI-compatible chat completions)
	AIAPIKey         string
	AIAPIURL         string
	AIModel          string
	AITimeoutSeconds int

	// Context window sent to the AI provider
	ContextMaxMessages int
	ContextMaxChars    int
}

func Load() *Config {
	aiTimeout, _ := strconv.Atoi(getEnv("AI_TIMEOUT_SECONDS", "30"))
	maxMessages, _ := strconv.Atoi(getEnv("CONTEXT_MAX_MESSAGES", "10"))
	maxChars, _ := strconv.Atoi(getEnv("CONTEXT_MAX_CHARS", "8000"))
	return &Config{
		Port:               getEnv("PORT", "8000"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "chatflow_db"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		AIAPIKey:           getEnv("AI_API_KEY", ""),
		AIAPIURL:           getEnv("AI_API_URL", "https://api.openai.com/v1/chat/completions"),
		AIModel:            getEnv("AI_MODEL", "gpt-4o-mini"),
		AITimeoutSeconds:   aiTimeout,
		ContextMaxMessages: maxMessages,
		ContextMaxChars:    maxChars,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
