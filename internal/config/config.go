package config

import (
	"fmt"
	"net/url"

	pkgconfig "github.com/utafrali/catalog-indexer/pkg/config"
	"github.com/utafrali/catalog-indexer/pkg/validator"
)

// Index engines.
const (
	EngineBleve         = "bleve"
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Catalog sources.
const (
	SourcePostgres = "postgres"
	SourceMemory   = "memory"
)

// Config holds all configuration for the indexer service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"INDEXER_HTTP_PORT" envDefault:"8011"`

	// Indexing
	IndexOwner     string `env:"INDEX_OWNER" envDefault:"default"`
	IndexEngine    string `env:"INDEX_ENGINE" envDefault:"bleve"`
	IndexRoot      string `env:"INDEX_ROOT" envDefault:"./data/index"`
	IndexBatchSize int    `env:"INDEX_BATCH_SIZE" envDefault:"100"`
	PropertiesFile string `env:"PROPERTIES_FILE"`

	// Elasticsearch
	ElasticsearchURL         string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndexPrefix string `env:"ELASTICSEARCH_INDEX_PREFIX" envDefault:"catalog_"`

	// Catalog source (postgres or memory)
	CatalogSource string `env:"CATALOG_SOURCE" envDefault:"postgres"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"catalog"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"catalog_secret"`
	PostgresDB   string `env:"CATALOG_DB_NAME" envDefault:"catalog"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	DBAutoMigrate         bool  `env:"DB_AUTO_MIGRATE" envDefault:"false"`

	// Slow query logging threshold in milliseconds (0 disables)
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"catalog-indexer"`

	// Redis (event de-duplication and reindex-due tracking)
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Content service
	ContentServiceURL string `env:"CONTENT_SERVICE_URL" envDefault:"http://localhost:8012"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Admin surface
	AdminAllowedCIDRs []string `env:"ADMIN_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load indexer config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.IndexBatchSize < 1 {
		return fmt.Errorf("invalid index batch size: %d", c.IndexBatchSize)
	}
	if !validator.IsEntityID(c.IndexOwner) {
		return fmt.Errorf("invalid index owner: %q", c.IndexOwner)
	}
	switch c.IndexEngine {
	case EngineBleve:
		if c.IndexRoot == "" {
			return fmt.Errorf("INDEX_ROOT is required for the bleve engine")
		}
	case EngineElasticsearch:
		if _, err := url.ParseRequestURI(c.ElasticsearchURL); err != nil {
			return fmt.Errorf("invalid ELASTICSEARCH_URL: %w", err)
		}
	case EngineMemory:
	default:
		return fmt.Errorf("unknown index engine: %q", c.IndexEngine)
	}
	switch c.CatalogSource {
	case SourcePostgres, SourceMemory:
	default:
		return fmt.Errorf("unknown catalog source: %q", c.CatalogSource)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("invalid OTEL sample rate: %v", c.OTELSampleRate)
	}
	return nil
}
