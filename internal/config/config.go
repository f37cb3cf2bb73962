package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by SPECLENS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("SPECLENS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// AutoMigrate reports whether the server applies pending migrations at startup.
// Defaults to true.
func AutoMigrate() bool {
	return boolEnv("AUTO_MIGRATE", true)
}

// DomainsPath is the root directory scanned for domain.yaml files.
func DomainsPath() string {
	p := os.Getenv("DOMAINS_PATH")
	if p == "" {
		return "domains"
	}
	return p
}

// DomainWatch enables reloading domains when their files change.
func DomainWatch() bool {
	return boolEnv("DOMAIN_WATCH", false)
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

func CerebrasAPIKey() string {
	return os.Getenv("CEREBRAS_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Defaults to "anthropic" if not set.
// Valid values: anthropic, openai, gemini, cerebras, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "anthropic"
	}
	return strings.ToLower(p)
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "openai":
		return OpenAIAPIKey()
	case "gemini":
		return GeminiAPIKey()
	case "cerebras":
		return CerebrasAPIKey()
	case "mock":
		return ""
	default:
		return AnthropicAPIKey()
	}
}

// LLMModel overrides the provider's default model.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// LLMBaseURL overrides the provider's endpoint, for OpenAI-compatible gateways.
func LLMBaseURL() string {
	return os.Getenv("LLM_BASE_URL")
}

// LLMTimeout bounds a single completion call. Defaults to 60s.
func LLMTimeout() time.Duration {
	return durationEnv("LLM_TIMEOUT", 60*time.Second)
}

// LLMMaxTokens returns the completion budget for extraction. Defaults to 2048.
func LLMMaxTokens() int {
	return intEnv("LLM_MAX_TOKENS", 2048)
}

// LLMMaxConcurrent caps in-flight completion calls. Defaults to 4.
func LLMMaxConcurrent() int {
	return intEnv("LLM_MAX_CONCURRENT", 4)
}

// DynamicQuestions enables generated follow-up questions once a domain's
// templated questions run out. Defaults to false.
func DynamicQuestions() bool {
	return boolEnv("DYNAMIC_QUESTIONS", false)
}

// PhaseThreshold returns the overall maturity required to enter phase.
// Defaults to 60 for every transition.
func PhaseThreshold(phase string) float64 {
	v, err := strconv.ParseFloat(os.Getenv("PHASE_THRESHOLD_"+strings.ToUpper(phase)), 64)
	if err != nil || v < 0 || v > 100 {
		return 60
	}
	return v
}

// CodegenMinMaturity is the overall maturity required by generate_code.
// Defaults to 100.
func CodegenMinMaturity() float64 {
	v, err := strconv.ParseFloat(os.Getenv("CODEGEN_MIN_MATURITY"), 64)
	if err != nil || v < 0 || v > 100 {
		return 100
	}
	return v
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func intEnv(name string, def int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func boolEnv(name string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	if err != nil {
		return def
	}
	return v
}

func durationEnv(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
