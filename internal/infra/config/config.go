package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StorageScylla   = "scylla"
	StoragePostgres = "postgres"

	PropertiesMemory = "memory"
	PropertiesMongo  = "mongo"
	PropertiesHTTP   = "http"

	AuthSession = "session"
	AuthJWT     = "jwt"

	MessagingEmbedded = "embedded"
	MessagingGRPC     = "grpc"

	BridgeNone  = "none"
	BridgeKafka = "kafka"
	BridgeRedis = "redis"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr string `envconfig:"GRPC_ADDR" default:":9090"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	MongoURI      string `envconfig:"MONGO_URI"`
	MongoDB       string `envconfig:"MONGO_DB" default:"propchat"`

	ScyllaHosts             []string      `envconfig:"SCYLLA_HOSTS" default:"127.0.0.1"`
	ScyllaKeyspace          string        `envconfig:"SCYLLA_KEYSPACE" default:"propchat"`
	ScyllaUsername          string        `envconfig:"SCYLLA_USERNAME"`
	ScyllaPassword          string        `envconfig:"SCYLLA_PASSWORD"`
	ScyllaConsistency       string        `envconfig:"SCYLLA_CONSISTENCY" default:"LOCAL_QUORUM"`
	ScyllaTimeout           time.Duration `envconfig:"SCYLLA_TIMEOUT" default:"5s"`
	ScyllaReplicationFactor int           `envconfig:"SCYLLA_REPLICATION_FACTOR" default:"1"`

	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	PropertySource     string        `envconfig:"PROPERTY_SOURCE" default:"memory"`
	PropertyAPIURL     string        `envconfig:"PROPERTY_API_URL"`
	PropertyAPITimeout time.Duration `envconfig:"PROPERTY_API_TIMEOUT" default:"3s"`
	FixturesPath       string        `envconfig:"FIXTURES_PATH"`

	AuthMode   string        `envconfig:"AUTH_MODE" default:"session"`
	JWTSecret  string        `envconfig:"JWT_SECRET"`
	JWTIssuer  string        `envconfig:"JWT_ISSUER"`
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	MessagingMode     string        `envconfig:"MESSAGING_MODE" default:"embedded"`
	MessagingGRPCAddr string        `envconfig:"MESSAGING_GRPC_ADDR" default:"localhost:9090"`
	MessagingGRPCDial time.Duration `envconfig:"MESSAGING_GRPC_DIAL_TIMEOUT" default:"3s"`
	MessagingGRPCTime time.Duration `envconfig:"MESSAGING_GRPC_TIMEOUT" default:"5s"`

	DeliveryBridge    string   `envconfig:"DELIVERY_BRIDGE" default:"none"`
	DeliveryQueueSize int      `envconfig:"DELIVERY_QUEUE_SIZE" default:"1024"`
	KafkaBrokers      []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic        string   `envconfig:"KAFKA_TOPIC" default:"chat.messages.v1"`
	KafkaGroup        string   `envconfig:"KAFKA_GROUP"`
	RedisURL          string   `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisChannel      string   `envconfig:"REDIS_CHANNEL" default:"propchat:messages"`

	S3Endpoint       string `envconfig:"S3_ENDPOINT"`
	S3PublicEndpoint string `envconfig:"S3_PUBLIC_ENDPOINT"`
	S3AccessKey      string `envconfig:"S3_ACCESS_KEY" default:"minioadmin"`
	S3SecretKey      string `envconfig:"S3_SECRET_KEY" default:"minioadmin"`
	S3Bucket         string `envconfig:"S3_BUCKET" default:"propchat-transcripts"`
	S3UseSSL         bool   `envconfig:"S3_USE_SSL" default:"false"`

	PageSizeDefault int `envconfig:"PAGE_SIZE_DEFAULT" default:"50"`
	PageSizeMax     int `envconfig:"PAGE_SIZE_MAX" default:"200"`
}

// Load reads an optional .env file and parses configuration from the environment.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotenv() error {
	path := os.Getenv("DOTENV_PATH")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PropertySource = strings.ToLower(strings.TrimSpace(c.PropertySource))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.MessagingMode = strings.ToLower(strings.TrimSpace(c.MessagingMode))
	c.DeliveryBridge = strings.ToLower(strings.TrimSpace(c.DeliveryBridge))
	c.KafkaBrokers = compact(c.KafkaBrokers)
	c.ScyllaHosts = compact(c.ScyllaHosts)
	if c.S3PublicEndpoint == "" {
		c.S3PublicEndpoint = c.S3Endpoint
	}
	if c.KafkaGroup == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			c.KafkaGroup = "propchat-gateway-" + host
		} else {
			c.KafkaGroup = "propchat-gateway"
		}
	}
}

// Validate checks that every selected driver has what it needs.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_DRIVER=%s", c.StorageDriver)
		}
	case StorageScylla:
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS is required when STORAGE_DRIVER=%s", c.StorageDriver)
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORAGE_DRIVER=%s", c.StorageDriver)
		}
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.PropertySource {
	case PropertiesMemory:
	case PropertiesMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when PROPERTY_SOURCE=%s", c.PropertySource)
		}
	case PropertiesHTTP:
		if c.PropertyAPIURL == "" {
			return fmt.Errorf("PROPERTY_API_URL is required when PROPERTY_SOURCE=%s", c.PropertySource)
		}
	default:
		return fmt.Errorf("invalid PROPERTY_SOURCE %q", c.PropertySource)
	}

	switch c.AuthMode {
	case AuthSession:
	case AuthJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=%s", c.AuthMode)
		}
	default:
		return fmt.Errorf("invalid AUTH_MODE %q", c.AuthMode)
	}

	switch c.MessagingMode {
	case MessagingEmbedded, MessagingGRPC:
	default:
		return fmt.Errorf("invalid MESSAGING_MODE %q", c.MessagingMode)
	}

	switch c.DeliveryBridge {
	case BridgeNone, BridgeRedis:
	case BridgeKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when DELIVERY_BRIDGE=%s", c.DeliveryBridge)
		}
	default:
		return fmt.Errorf("invalid DELIVERY_BRIDGE %q", c.DeliveryBridge)
	}

	if c.PageSizeDefault <= 0 || c.PageSizeMax <= 0 || c.PageSizeDefault > c.PageSizeMax {
		return fmt.Errorf("invalid page sizes: PAGE_SIZE_DEFAULT=%d PAGE_SIZE_MAX=%d", c.PageSizeDefault, c.PageSizeMax)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SESSION_TTL %s", c.SessionTTL)
	}
	return nil
}

// S3Enabled reports whether transcript export has somewhere to write.
func (c Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3Bucket != ""
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
