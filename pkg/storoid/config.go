package storoid

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration. All durations accept the
// usual Go duration strings in YAML ("5s", "100ms").
type Config struct {
	// Cassandra configures the backing cluster session.
	Cassandra CassandraConfig `yaml:"cassandra"`

	// SchemaCache configures the optional shared schema cache.
	SchemaCache SchemaCacheConfig `yaml:"schema_cache"`

	// Repair configures the companion-index reconciliation sweep.
	Repair RepairConfig `yaml:"repair"`
}

// CassandraConfig holds cluster session settings.
type CassandraConfig struct {
	Hosts         []string      `yaml:"hosts"`
	Port          int           `yaml:"port"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
}

// SchemaCacheConfig holds the optional Redis second-level schema cache.
// Schemas are immutable once created, so the remote layer needs no
// invalidation protocol.
type SchemaCacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Endpoint     string        `yaml:"endpoint"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TTL          time.Duration `yaml:"ttl"`
}

// RepairConfig holds repair queue and sweep settings.
type RepairConfig struct {
	// QueueType selects the repair transport: "memory" or "kafka".
	QueueType string `yaml:"queue_type"`

	// BufferSize bounds the memory queue.
	BufferSize int `yaml:"buffer_size"`

	// Rate caps repair writes per second.
	Rate int `yaml:"rate"`

	// BatchSize is how many repairs to dequeue at once.
	BatchSize int `yaml:"batch_size"`

	// PollInterval is how long the sweep idles on an empty queue.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxRetries bounds re-enqueues of a failing repair.
	MaxRetries int `yaml:"max_retries"`

	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka transport settings, used when QueueType is
// "kafka".
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MinBytes     int           `yaml:"min_bytes"`
	MaxBytes     int           `yaml:"max_bytes"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// DefaultConfig returns a configuration with sensible defaults for a local
// single-node cluster.
func DefaultConfig() *Config {
	return &Config{
		Cassandra: CassandraConfig{
			Hosts:         []string{"localhost"},
			Port:          9042,
			Timeout:       10 * time.Second,
			Retries:       0,
			RetryInterval: 2 * time.Second,
		},
		SchemaCache: SchemaCacheConfig{
			Redis: RedisConfig{
				Enabled:      false,
				Endpoint:     "localhost:6379",
				PoolSize:     10,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Repair: RepairConfig{
			QueueType:    "memory",
			BufferSize:   10000,
			Rate:         50,
			BatchSize:    16,
			PollInterval: 500 * time.Millisecond,
			MaxRetries:   5,
			Kafka: KafkaConfig{
				Brokers:      []string{"localhost:9092"},
				Topic:        "storoid-repair",
				GroupID:      "storoid-repair",
				BatchSize:    100,
				BatchTimeout: 10 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				MinBytes:     1,
				MaxBytes:     10 * 1024 * 1024,
				MaxWait:      100 * time.Millisecond,
			},
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if len(c.Cassandra.Hosts) == 0 {
		return fmt.Errorf("cassandra.hosts is required")
	}
	if c.Cassandra.Port < 0 || c.Cassandra.Port > 65535 {
		return fmt.Errorf("cassandra.port must be between 0 and 65535")
	}
	switch c.Repair.QueueType {
	case "", "memory":
	case "kafka":
		if len(c.Repair.Kafka.Brokers) == 0 {
			return fmt.Errorf("repair.kafka.brokers is required when queue_type is 'kafka'")
		}
		if c.Repair.Kafka.Topic == "" {
			return fmt.Errorf("repair.kafka.topic is required when queue_type is 'kafka'")
		}
	default:
		return fmt.Errorf("repair.queue_type must be 'memory' or 'kafka'")
	}
	if c.SchemaCache.Redis.Enabled && c.SchemaCache.Redis.Endpoint == "" {
		return fmt.Errorf("schema_cache.redis.endpoint is required when redis is enabled")
	}
	return nil
}
