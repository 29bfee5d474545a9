package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends for the Order ledger.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config is the full process configuration.
type Config struct {
	Server       Server
	Log          LogConfig
	Store        StoreConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Ledger       LedgerConfig
	Verification VerificationConfig
	JWT          JWTConfig
	Admin        AdminConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// LogConfig selects level and handler format (json or text).
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig picks the Order store backend.
type StoreConfig struct {
	Backend string
}

// DatabaseConfig holds PostgreSQL pool settings.
type DatabaseConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the reconciliation stream. Empty Brokers keeps
// uncompensated consumptions in memory only.
type KafkaConfig struct {
	Brokers           []string
	ReconcileTopic    string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// LedgerConfig tunes the consumption coordinator and fallback policy.
type LedgerConfig struct {
	// DebitTimeout bounds the detached debit after a successful operation.
	DebitTimeout time.Duration
	// Fallbacks maps a requested verification type to its priority chain.
	Fallbacks map[string][]string
}

// VerificationConfig describes the upstream verification API. With no
// ProviderBaseURL every type is served by the deterministic sandbox provider.
type VerificationConfig struct {
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration
	// Types are the verification types exposed under /v1/verifications.
	Types []string
	// ConsentRequired lists types whose payload must carry a consent flag.
	ConsentRequired []string
}

// JWTConfig verifies bearer tokens issued by the authentication service.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// AdminConfig guards the internal grant endpoint. An empty token leaves the
// admin routes unmounted.
type AdminConfig struct {
	Token string
}

// DefaultFallbacks mirrors the purchase catalog: a company check may be paid
// for with PAN quota.
var DefaultFallbacks = map[string][]string{
	"company": {"company", "pan"},
	"gstin":   {"gstin", "pan"},
}

// DefaultVerificationTypes is the catalog served when none is configured.
var DefaultVerificationTypes = []string{
	"pan", "company", "gstin", "aadhaar", "drivinglicense",
	"voterid", "passport", "rc", "epfo", "bankaccount",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.backend", StoreMemory)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.reconcile_topic", "verigate.uncompensated-consumptions")
	v.SetDefault("kafka.client_id", "verigate")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("ledger.debit_timeout", 5*time.Second)
	v.SetDefault("ledger.fallbacks", DefaultFallbacks)

	v.SetDefault("verification.provider_base_url", "")
	v.SetDefault("verification.provider_api_key", "")
	v.SetDefault("verification.provider_timeout", 30*time.Second)
	v.SetDefault("verification.types", DefaultVerificationTypes)
	v.SetDefault("verification.consent_required", []string{"aadhaar", "gstin"})

	v.SetDefault("jwt.signing_key", "dev-secret-key-change-in-production")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")

	v.SetDefault("admin.token", "")
}

// Load reads config.{yaml,toml,json} from the working directory or
// /etc/verigate when present, then applies VERIGATE_* environment overrides
// (VERIGATE_STORE_BACKEND, VERIGATE_DATABASE_URL, ...).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/verigate")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("VERIGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	fallbacks, err := fallbacksFrom(v)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Server: Server{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("store.backend")),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			MaxConns:        v.GetInt32("database.max_conns"),
			MinConns:        v.GetInt32("database.min_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:           splitList(v.GetStringSlice("kafka.brokers")),
			ReconcileTopic:    v.GetString("kafka.reconcile_topic"),
			ClientID:          v.GetString("kafka.client_id"),
			Partitions:        v.GetInt32("kafka.partitions"),
			ReplicationFactor: int16(v.GetInt("kafka.replication_factor")),
		},
		Ledger: LedgerConfig{
			DebitTimeout: v.GetDuration("ledger.debit_timeout"),
			Fallbacks:    fallbacks,
		},
		Verification: VerificationConfig{
			ProviderBaseURL: strings.TrimRight(v.GetString("verification.provider_base_url"), "/"),
			ProviderAPIKey:  v.GetString("verification.provider_api_key"),
			ProviderTimeout: v.GetDuration("verification.provider_timeout"),
			Types:           splitList(v.GetStringSlice("verification.types")),
			ConsentRequired: splitList(v.GetStringSlice("verification.consent_required")),
		},
		JWT: JWTConfig{
			SigningKey: v.GetString("jwt.signing_key"),
			Issuer:     v.GetString("jwt.issuer"),
			Audience:   v.GetString("jwt.audience"),
		},
		Admin: AdminConfig{
			Token: v.GetString("admin.token"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("database url is required for the postgres store")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("redis url is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Ledger.DebitTimeout <= 0 {
		return errors.New("ledger debit timeout must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.ReconcileTopic == "" {
		return errors.New("kafka reconcile topic is required when brokers are set")
	}
	if len(c.Verification.Types) == 0 {
		return errors.New("at least one verification type is required")
	}
	if c.Verification.ProviderTimeout <= 0 {
		return errors.New("verification provider timeout must be positive")
	}
	if c.JWT.SigningKey == "" {
		return errors.New("jwt signing key is required")
	}
	return nil
}

// fallbacksFrom accepts both the structured form from a config file and the
// env form "company=company,pan;kyc=aadhaar,pan".
func fallbacksFrom(v *viper.Viper) (map[string][]string, error) {
	out := make(map[string][]string)
	switch raw := v.Get("ledger.fallbacks").(type) {
	case nil:
	case string:
		return parseFallbacks(raw)
	case map[string][]string:
		for k, chain := range raw {
			out[k] = splitList(chain)
		}
	case map[string]any:
		for k, val := range raw {
			chain, err := chainFrom(val)
			if err != nil {
				return nil, fmt.Errorf("fallback %q: %w", k, err)
			}
			out[k] = chain
		}
	default:
		return nil, fmt.Errorf("unsupported fallbacks value of type %T", raw)
	}
	return out, nil
}

func chainFrom(val any) ([]string, error) {
	switch c := val.(type) {
	case string:
		return splitList([]string{c}), nil
	case []string:
		return splitList(c), nil
	case []any:
		parts := make([]string, 0, len(c))
		for _, p := range c {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("chain entries must be strings, got %T", p)
			}
			parts = append(parts, s)
		}
		return splitList(parts), nil
	default:
		return nil, fmt.Errorf("unsupported chain of type %T", val)
	}
}

func parseFallbacks(s string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, chain, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid fallback entry %q", entry)
		}
		out[strings.TrimSpace(key)] = splitList([]string{chain})
	}
	return out, nil
}

// splitList flattens comma-separated values so env vars and file lists read alike.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
