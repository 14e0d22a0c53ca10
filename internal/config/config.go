// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/database"
	"github.com/hershield/hershield/internal/geo"
	"github.com/hershield/hershield/internal/monitor"
)

// EmergencyNumber is a helpline shown to users.
type EmergencyNumber struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

// DefaultEmergencyNumbers are the Indian police and women's helplines.
var DefaultEmergencyNumbers = []EmergencyNumber{
	{Name: "Police", Number: "100"},
	{Name: "Women Helpline", Number: "1091"},
}

// Config is the complete service configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel zerolog.Level

	OracleEnabled   bool
	OracleURL       string
	OracleTimeout   time.Duration
	ScoreCacheTTL   time.Duration
	ScoreStaleTTL   time.Duration
	ScoreCacheGrid  float64
	DefaultLocation geo.Coordinate

	NominatimURL        string
	GeocodeTimeout      time.Duration
	GeocodeRegionSuffix string
	GeocodeUserAgent    string
	GeocodeCacheTTL     time.Duration

	DeviationThresholdMeters float64
	DeviationStrategy        monitor.Strategy

	AlertWebhookURL     string
	AlertNotifyTimeout  time.Duration
	AlertRecentWindow   int
	AlertArchiveEnabled bool
	PubSubProjectID     string
	PubSubAlertTopic    string

	// Alert relay worker
	PubSubAlertSubscription string
	RelayMaxAge             time.Duration
	RelayMaxOutstanding     int

	EmergencyNumbers []EmergencyNumber

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseEnabled bool
	Database        database.Config

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	OTelEnabled     bool
	OTLPEndpoint    string
	OTelSampleRatio float64

	RequireTLS              bool
	WebSocketOriginPatterns []string
}

// AlertDelivery is how the API hands alerts to responders.
type AlertDelivery string

const (
	// AlertDeliveryRecordOnly keeps alerts in the journey log only.
	AlertDeliveryRecordOnly AlertDelivery = "record-only"
	// AlertDeliveryDirect posts each alert to the webhook from the API.
	AlertDeliveryDirect AlertDelivery = "direct"
	// AlertDeliveryRelayed publishes each alert to Pub/Sub; the relay worker
	// is the only process that posts to the webhook.
	AlertDeliveryRelayed AlertDelivery = "relayed"
)

// AlertDelivery picks exactly one delivery path so a responder never
// receives the same alert from both the API and the relay worker.
func (c *Config) AlertDelivery() AlertDelivery {
	switch {
	case c.PubSubProjectID != "":
		return AlertDeliveryRelayed
	case c.AlertWebhookURL != "":
		return AlertDeliveryDirect
	default:
		return AlertDeliveryRecordOnly
	}
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads an optional .env file and then the environment.
// Values already set in the environment take precedence over the file.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	var errs []error

	defaultLocation, err := geo.NewCoordinate(
		getFloatEnv("DEFAULT_LAT", 28.6139),
		getFloatEnv("DEFAULT_LON", 77.2090),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LON: %w", err))
	}

	strategy, err := monitor.ParseStrategy(os.Getenv("DEVIATION_STRATEGY"))
	if err != nil {
		errs = append(errs, fmt.Errorf("DEVIATION_STRATEGY: %w", err))
	}

	threshold := getFloatEnv("DEVIATION_THRESHOLD_METERS", monitor.DefaultThresholdMeters)
	if threshold <= 0 {
		errs = append(errs, fmt.Errorf("DEVIATION_THRESHOLD_METERS must be positive, got %v", threshold))
	}

	numbers, err := parseEmergencyNumbers(os.Getenv("EMERGENCY_NUMBERS"))
	if err != nil {
		errs = append(errs, fmt.Errorf("EMERGENCY_NUMBERS: %w", err))
	}

	cfg := &Config{
		Port:     getEnv("APP_PORT", "8080"),
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getLogLevelEnv("LOG_LEVEL", zerolog.InfoLevel),

		OracleEnabled:   getBoolEnv("ORACLE_ENABLED", true),
		OracleURL:       getEnv("ORACLE_URL", "http://localhost:5000"),
		OracleTimeout:   getDurationEnv("ORACLE_TIMEOUT", 2*time.Second),
		ScoreCacheTTL:   getDurationEnv("SCORE_CACHE_TTL", 5*time.Minute),
		ScoreStaleTTL:   getDurationEnv("SCORE_STALE_TTL", 30*time.Minute),
		ScoreCacheGrid:  getFloatEnv("SCORE_CACHE_GRID", 0.001),
		DefaultLocation: defaultLocation,

		NominatimURL:        getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocodeTimeout:      getDurationEnv("GEOCODE_TIMEOUT", 3*time.Second),
		GeocodeRegionSuffix: getEnv("GEOCODE_REGION_SUFFIX", ", Delhi, India"),
		GeocodeUserAgent:    getEnv("GEOCODE_USER_AGENT", "hershield/1.0"),
		GeocodeCacheTTL:     getDurationEnv("GEOCODE_CACHE_TTL", 7*24*time.Hour),

		DeviationThresholdMeters: threshold,
		DeviationStrategy:        strategy,

		AlertWebhookURL:     os.Getenv("ALERT_WEBHOOK_URL"),
		AlertNotifyTimeout:  getDurationEnv("ALERT_NOTIFY_TIMEOUT", 5*time.Second),
		AlertRecentWindow:   getIntEnv("ALERT_RECENT_WINDOW", 5),
		AlertArchiveEnabled: getBoolEnv("ALERT_ARCHIVE_ENABLED", false),
		PubSubProjectID:     os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubAlertTopic:    getEnv("PUBSUB_ALERT_TOPIC", "hershield-alerts"),

		PubSubAlertSubscription: getEnv("PUBSUB_ALERT_SUBSCRIPTION", "hershield-alerts-relay"),
		RelayMaxAge:             getDurationEnv("RELAY_MAX_AGE", time.Hour),
		RelayMaxOutstanding:     getIntEnv("RELAY_MAX_OUTSTANDING", 10),

		EmergencyNumbers: numbers,

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		DatabaseEnabled: getBoolEnv("DB_ENABLED", false),
		Database:        databaseConfig(),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnv("JWT_ISSUER", "hershield"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "hershield-app"),

		OTelEnabled:     getBoolEnv("OTEL_ENABLED", false),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getFloatEnv("OTEL_SAMPLE_RATIO", 1),

		RequireTLS:              getBoolEnv("REQUIRE_TLS", false),
		WebSocketOriginPatterns: getListEnv("WS_ORIGIN_PATTERNS"),
	}

	if cfg.AlertArchiveEnabled && !cfg.DatabaseEnabled {
		errs = append(errs, errors.New("ALERT_ARCHIVE_ENABLED requires DB_ENABLED"))
	}
	if cfg.IsProduction() && cfg.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// databaseConfig reads DATABASE_URL or the DB_* parts over the local defaults.
func databaseConfig() database.Config {
	d := database.DefaultConfig()
	d.URL = os.Getenv("DATABASE_URL")
	d.Host = getEnv("DB_HOST", d.Host)
	d.Port = getIntEnv("DB_PORT", d.Port)
	d.User = getEnv("DB_USER", d.User)
	d.Password = getEnv("DB_PASSWORD", d.Password)
	d.Name = getEnv("DB_NAME", d.Name)
	d.SSLMode = getEnv("DB_SSL_MODE", d.SSLMode)
	d.MaxConns = int32(getIntEnv("DB_MAX_CONNS", int(d.MaxConns))) //nolint:gosec // small pool sizes
	d.MinConns = int32(getIntEnv("DB_MIN_CONNS", int(d.MinConns))) //nolint:gosec // small pool sizes
	d.MaxConnLifetime = getDurationEnv("DB_CONN_MAX_LIFETIME", d.MaxConnLifetime)
	d.StartupTimeout = getDurationEnv("DB_STARTUP_TIMEOUT", d.StartupTimeout)
	return d
}

// parseEmergencyNumbers parses "Name=Number" pairs separated by commas.
func parseEmergencyNumbers(v string) ([]EmergencyNumber, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return append([]EmergencyNumber(nil), DefaultEmergencyNumbers...), nil
	}

	var numbers []EmergencyNumber
	for _, part := range strings.Split(v, ",") {
		name, number, ok := strings.Cut(part, "=")
		name, number = strings.TrimSpace(name), strings.TrimSpace(number)
		if !ok || name == "" || number == "" {
			return nil, fmt.Errorf("malformed entry %q, want Name=Number", strings.TrimSpace(part))
		}
		numbers = append(numbers, EmergencyNumber{Name: name, Number: number})
	}
	return numbers, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal zerolog.Level) zerolog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	level, err := zerolog.ParseLevel(strings.ToLower(v))
	if err != nil {
		return defaultVal
	}
	return level
}
