package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Engine    EngineConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	TimeZone string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify bearer tokens issued by
// the identity provider. An empty secret disables authentication.
type JWTConfig struct {
	Secret string
}

// EngineConfig carries every tunable of the allocation engine.
type EngineConfig struct {
	DefaultSlotCapacity int
	ReservedBuffer      int
	CapacityTTL         time.Duration
	SlotLockTTL         time.Duration
	SlotLockWait        time.Duration
	NoShowGrace         time.Duration
	ReconcileInterval   time.Duration
	ReconcileOnStartup  bool
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
	OTLPInsecure bool
}

func LoadConfig() (*Config, error) {
	// .env is optional; real environment variables always win.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_SLOT_CAPACITY", 10)
	v.SetDefault("RESERVED_BUFFER", 2)
	v.SetDefault("CAPACITY_TTL", "24h")
	v.SetDefault("SLOT_LOCK_TTL", "5s")
	v.SetDefault("SLOT_LOCK_WAIT", "2s")
	v.SetDefault("NO_SHOW_GRACE", "10m")
	v.SetDefault("RECONCILE_INTERVAL", "0s")
	v.SetDefault("RECONCILE_ON_STARTUP", true)
	v.SetDefault("OTEL_SERVICE_NAME", "opd-token-allocation")

	config := &Config{
		App: AppConfig{
			Port:     v.GetString("APP_PORT"),
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		DB: DBConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			TimeZone: v.GetString("DB_TIMEZONE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("JWT_SECRET"),
		},
		Engine: EngineConfig{
			DefaultSlotCapacity: v.GetInt("DEFAULT_SLOT_CAPACITY"),
			ReservedBuffer:      v.GetInt("RESERVED_BUFFER"),
			CapacityTTL:         durationOr(v, "CAPACITY_TTL", 24*time.Hour),
			SlotLockTTL:         durationOr(v, "SLOT_LOCK_TTL", 5*time.Second),
			SlotLockWait:        durationOr(v, "SLOT_LOCK_WAIT", 2*time.Second),
			NoShowGrace:         durationOr(v, "NO_SHOW_GRACE", 10*time.Minute),
			ReconcileInterval:   durationOr(v, "RECONCILE_INTERVAL", 0),
			ReconcileOnStartup:  v.GetBool("RECONCILE_ON_STARTUP"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
	}

	return config, nil
}

// DefaultEngineConfig returns the engine defaults used when no environment is present.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultSlotCapacity: 10,
		ReservedBuffer:      2,
		CapacityTTL:         24 * time.Hour,
		SlotLockTTL:         5 * time.Second,
		SlotLockWait:        2 * time.Second,
		NoShowGrace:         10 * time.Minute,
		ReconcileOnStartup:  true,
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// AuthEnabled reports whether bearer token verification is switched on.
func (c *Config) AuthEnabled() bool {
	return c.JWT.Secret != ""
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}
