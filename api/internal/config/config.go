package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string

	AnalysisProvider string // stub | gemini | gemini-sdk | openai
	AnalysisTimeout  time.Duration
	StubDelay        time.Duration
	BreakerEnabled   bool
	SessionIdleTTL   time.Duration // 0: сессии не вытесняются

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	StoreDriver string // memory | sqlite | postgres
	SQLitePath  string
	DatabaseURL string

	TelegramBotToken string
	WebhookURL       string

	TipsFile string

	NATSURL     string
	NATSSubject string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadDotEnv подхватывает .env, если он есть. Уже заданные переменные не перетираются.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load %v: %w", existing, err)
	}
	return nil
}

func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AnalysisProvider: strings.ToLower(getEnv("ANALYSIS_PROVIDER", "stub")),
		AnalysisTimeout:  getDuration("ANALYSIS_TIMEOUT", 60*time.Second),
		StubDelay:        getDuration("STUB_DELAY", 3*time.Second),
		BreakerEnabled:   getBool("BREAKER_ENABLED", true),
		SessionIdleTTL:   getDuration("SESSION_IDLE_TTL", 30*time.Minute),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL: getEnv("GEMINI_BASE_URL", ""),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		SQLitePath:  getEnv("SQLITE_PATH", "data/ecovision.db"),
		DatabaseURL: resolveDSN(),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		TipsFile: getEnv("TIPS_FILE", ""),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "ecovision.analysis.completed"),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "ecovision-posters"),
		MinIOUseSSL:    getBool("MINIO_USE_SSL", false),

		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 10),
	}
}

// Validate проверяет только то, что нужно выбранному провайдеру/драйверу.
func (c *Config) Validate() error {
	var errs []error
	switch c.AnalysisProvider {
	case "stub":
	case "gemini", "gemini-sdk":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for provider "+c.AnalysisProvider))
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ANALYSIS_PROVIDER %q", c.AnalysisProvider))
	}

	switch c.StoreDriver {
	case "memory":
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for store sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL or POSTGRES_* is required for store postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.AnalysisTimeout <= 0 {
		errs = append(errs, errors.New("ANALYSIS_TIMEOUT must be positive"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative"))
	}
	if c.MinIOEndpoint != "" && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "") {
		errs = append(errs, errors.New("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT"))
	}
	return errors.Join(errs...)
}

// ValidateBot: дополнительно к Validate для Telegram-бота.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return errors.Join(c.Validate(), errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	return c.Validate()
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if n, err := strconv.Atoi(getEnv(k, "")); err == nil {
		return n
	}
	return def
}

func getFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(k, ""), 64); err == nil {
		return f
	}
	return def
}

func getBool(k string, def bool) bool {
	if b, err := strconv.ParseBool(getEnv(k, "")); err == nil {
		return b
	}
	return def
}

// getDuration принимает "90s"/"2m" и голое число секунд.
func getDuration(k string, def time.Duration) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveDSN: DATABASE_URL, иначе собираем из POSTGRES_*/PG*.
// Без POSTGRES_PASSWORD и PGHOST считаем, что Postgres не настроен.
func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "")
	if pass == "" && host == "" {
		return ""
	}
	if host == "" {
		host = "db"
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "ecovision"), pass),
		Host:     net.JoinHostPort(host, getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "ecovision"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary: для логов, без пароля.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	host, port := u.Host, ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, u.User.Username())
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, u.User.Username())
}
