package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// LLM extraction
	BedrockModelID       string
	GeminiAPIKey         string
	GeminiModelID        string
	ExtractionMaxRetries int
	ExtractionRetryDelay time.Duration
	ExtractionTimeout    time.Duration
	ExtractionMaxTokens  int
	Temperature          float64
	ExtractionCacheTTL   time.Duration

	// Batch processing
	UseMemoryQueue    bool
	WorkerCount       int
	TrackingQueueURL  string
	TrackingJobsTable string
	ResultsBucket     string

	// Dataset column mapping
	PatientIDColumn string
	DateColumn      string
	ReportColumn    string

	// Notifications
	SESSenderEmail    string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	NotifyEmails      string

	AdminJWTSecret     string
	CORSAllowedOrigins string
	SubmitRateLimit    float64
	SubmitBurst        int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		BedrockModelID:       getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		ExtractionMaxRetries: getEnvAsInt("EXTRACTION_MAX_RETRIES", 3),
		ExtractionRetryDelay: getEnvAsDuration("EXTRACTION_RETRY_DELAY", time.Second),
		ExtractionTimeout:    getEnvAsDuration("EXTRACTION_TIMEOUT", 60*time.Second),
		ExtractionMaxTokens:  getEnvAsInt("EXTRACTION_MAX_TOKENS", 2048),
		Temperature:          getEnvAsFloat("EXTRACTION_TEMPERATURE", 0.0),
		ExtractionCacheTTL:   getEnvAsDuration("EXTRACTION_CACHE_TTL", 24*time.Hour),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:       getEnvAsInt("WORKER_COUNT", 2),
		TrackingQueueURL:  getEnv("TRACKING_QUEUE_URL", ""),
		TrackingJobsTable: getEnv("TRACKING_JOBS_TABLE", "tracking_jobs"),
		ResultsBucket:     getEnv("RESULTS_BUCKET", ""),

		PatientIDColumn: getEnv("PATIENT_ID_COLUMN", "patient_id"),
		DateColumn:      getEnv("DATE_COLUMN", "date"),
		ReportColumn:    getEnv("REPORT_COLUMN", "report"),

		SESSenderEmail:    getEnv("SES_SENDER_EMAIL", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "OncoTrack AI"),
		NotifyEmails:      getEnv("NOTIFY_EMAILS", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		SubmitRateLimit:    getEnvAsFloat("SUBMIT_RATE_LIMIT", 0),
		SubmitBurst:        getEnvAsInt("SUBMIT_BURST", 5),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
