package config // package config loads application configuration from environment variables

import (
	"os"
	"time"
	_ "time/tzdata" // APP_TZ must resolve in minimal containers

	"github.com/rs/zerolog/log"
)

// Store backends.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Admission lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env             string         // application environment (development, production)
	Port            string         // HTTP port to listen on
	ServiceName     string         // service name attached to every log line
	LogLevel        string         // zerolog level (debug, info, warn, error)
	Location        *time.Location // time zone that decides what "today" is
	ShutdownTimeout time.Duration  // grace period for in-flight requests on shutdown
	StoreBackend    string         // mysql or memory
	DB              DBConfig       // MySQL connection (only read when StoreBackend is mysql)
	JWTSecret       string         // secret used to verify access tokens
	AMQPURL         string         // RabbitMQ URL for reservation events; empty disables publishing
	Admission       AdmissionConfig
	// MemoryFacilities seeds the facility directory of the memory backend.
	MemoryFacilities []FacilitySeed
}

// DBConfig holds MySQL connection settings.
type DBConfig struct {
	User            string
	Pass            string
	Host            string
	Port            string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration // total time spent retrying the initial ping
	AutoMigrate     bool          // apply the embedded schema at startup instead of only verifying it
}

// AdmissionConfig controls the admission controller policy.
type AdmissionConfig struct {
	AllowPastDates bool          // accept reservations for days before today
	LockBackend    string        // local (in-process) or redis (shared by all instances)
	LockTTL        time.Duration // Redis lease length
	LockWait       time.Duration // how long to wait for a busy key before failing with a storage error
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and missing values stop the process.
func Load() Config {
	cfg := Config{
		Env:             must("APP_ENV"),
		Port:            must("APP_PORT"),
		ServiceName:     envStr("SERVICE_NAME", "facility-booking"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		Location:        mustLocation(envStr("APP_TZ", "UTC")),
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT", 10*time.Second),
		StoreBackend:    envStr("STORE_BACKEND", StoreMySQL),
		JWTSecret:       must("JWT_SECRET"),
		AMQPURL:         amqpURL(),
		Admission: AdmissionConfig{
			AllowPastDates: envBool("ADMISSION_ALLOW_PAST_DATES", false),
			LockBackend:    envStr("ADMISSION_LOCK_BACKEND", LockLocal),
			LockTTL:        envDur("ADMISSION_LOCK_TTL", 15*time.Second),
			LockWait:       envDur("ADMISSION_LOCK_WAIT", 10*time.Second),
		},
	}
	switch cfg.StoreBackend {
	case StoreMySQL:
		cfg.DB = DBConfig{
			User:            must("DB_USER"),
			Pass:            os.Getenv("DB_PASS"), // empty allowed
			Host:            must("DB_HOST"),
			Port:            must("DB_PORT"),
			Name:            must("DB_NAME"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnectTimeout:  envDur("DB_CONNECT_TIMEOUT", 30*time.Second),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", false),
		}
	case StoreMemory:
		seeds, err := ParseFacilitySeeds(os.Getenv("MEMORY_FACILITIES"))
		if err != nil {
			log.Fatal().Err(err).Msg("invalid MEMORY_FACILITIES")
		}
		cfg.MemoryFacilities = seeds
	default:
		log.Fatal().Str("STORE_BACKEND", cfg.StoreBackend).Msg("unknown store backend")
	}
	if cfg.Admission.LockBackend != LockLocal && cfg.Admission.LockBackend != LockRedis {
		log.Fatal().Str("ADMISSION_LOCK_BACKEND", cfg.Admission.LockBackend).Msg("unknown admission lock backend")
	}
	return cfg
}

// amqpURL keeps the RABBITMQ_URL / AMQP_URL fallback used by the queue
// helpers.  Unlike them it has no localhost default: an unset URL turns
// event publishing off.
func amqpURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Msgf("missing required env var: %s", key)
	}
	return v
}

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Fatal().Err(err).Msgf("invalid APP_TZ %q", name)
	}
	return loc
}
