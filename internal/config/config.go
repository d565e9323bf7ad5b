package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database (empty = in-memory ledger store, development only)
	DatabaseURL string

	// Redis (empty = in-memory negotiation state and settlement cache)
	RedisURL string

	// Identity tokens
	JWTSecret string
	JWTTTL    time.Duration

	// CORS
	AllowedOrigins []string

	// Advisory oracle
	OracleBaseURL string
	OracleAPIKey  string
	OracleModel   string
	OracleTimeout time.Duration

	// External settlement rail
	FacilitatorURL     string
	FacilitatorAPIKey  string
	SettlementNetwork  string
	SettlementPayTo    string
	SettlementAsset    string
	SettlementDecimals int

	// Settlement recovery window for resumed requests
	RecoveryWindow time.Duration

	// Logging
	LogLevel string
}

func Load() *Config {
	// Load .env file in development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Redis
		RedisURL: getEnv("REDIS_URL", ""),

		// Identity tokens
		JWTSecret: getEnv("JWT_SECRET", "super-secret-key-change-me"),
		JWTTTL:    parseDuration(getEnv("JWT_TTL", "24h"), 24*time.Hour),

		// CORS
		AllowedOrigins: parseStringSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		// Advisory oracle
		OracleBaseURL: getEnv("ORACLE_BASE_URL", ""),
		OracleAPIKey:  getEnv("ORACLE_API_KEY", ""),
		OracleModel:   getEnv("ORACLE_MODEL", "gpt-4o-mini"),
		OracleTimeout: parseDuration(getEnv("ORACLE_TIMEOUT", "20s"), 20*time.Second),

		// External settlement rail
		FacilitatorURL:     getEnv("FACILITATOR_URL", ""),
		FacilitatorAPIKey:  getEnv("FACILITATOR_API_KEY", ""),
		SettlementNetwork:  getEnv("SETTLEMENT_NETWORK", "base-sepolia"),
		SettlementPayTo:    getEnv("SETTLEMENT_PAY_TO", ""),
		SettlementAsset:    getEnv("SETTLEMENT_ASSET", ""),
		SettlementDecimals: parseInt(getEnv("SETTLEMENT_ASSET_DECIMALS", "6"), 6),

		// Settlement recovery window
		RecoveryWindow: parseDuration(getEnv("SETTLEMENT_RECOVERY_WINDOW", "10m"), 10*time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseDuration(s string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultValue
	}
	return d
}

func parseInt(s string, defaultValue int) int {
	value, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseStringSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
