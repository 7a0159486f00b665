package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by CAUSAL_ENV (or .env by default), then
// the matching .secret sidecar if present. Everything else is flat env
// vars read through the getters below.
func Load() error {
	envFile := os.Getenv("CAUSAL_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment may already be populated.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intEnv("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// APIKey is the static key clients send as a bearer token. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second per client. Defaults to 100.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst defaults to 20.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns debug, info, warn or error. Defaults to info.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func InferenceThreshold() float64 {
	return floatEnv("CAUSAL_INFERENCE_THRESHOLD", 0.3)
}

// InferenceWorkers of 0 means one worker per CPU.
func InferenceWorkers() int {
	return intEnv("CAUSAL_INFERENCE_WORKERS", 0)
}

func InferenceMinSignals() int {
	return intEnv("CAUSAL_INFERENCE_MIN_SIGNALS", 2)
}

func TemporalWindow() time.Duration {
	return durationEnv("CAUSAL_TEMPORAL_WINDOW", 24*time.Hour)
}

func TraversalMaxDepth() int {
	return intEnv("CAUSAL_MAX_DEPTH", 5)
}

func TraversalMinStrength() float64 {
	return floatEnv("CAUSAL_MIN_STRENGTH", 0.3)
}

func TraversalMaxNodes() int {
	return intEnv("CAUSAL_MAX_NODES", 50)
}

func PropagationDepth() int {
	return intEnv("CAUSAL_PROPAGATION_DEPTH", 1)
}

func CandidateLimit() int {
	return intEnv("CAUSAL_CANDIDATE_LIMIT", 50)
}

func LockRetries() int {
	return intEnv("CAUSAL_LOCK_RETRIES", 8)
}

func LockBackoff() time.Duration {
	return durationEnv("CAUSAL_LOCK_BACKOFF", 5*time.Millisecond)
}

func PruneInterval() time.Duration {
	return durationEnv("CAUSAL_PRUNE_INTERVAL", time.Hour)
}

func PruneMinStrength() float64 {
	return floatEnv("CAUSAL_PRUNE_MIN_STRENGTH", 0.2)
}

// PruneMaxAge is how long an inferred edge may go without evidence.
func PruneMaxAge() time.Duration {
	return durationEnv("CAUSAL_PRUNE_MAX_AGE", 30*24*time.Hour)
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
