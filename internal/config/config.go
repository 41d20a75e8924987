package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/notifyhub/syften-relay/internal/logging"
)

// Roles select which halves of the relay a process runs.
const (
	RoleIngest   = "ingest"
	RoleDispatch = "dispatch"
	RoleAll      = "all"
)

// Queue drivers.
const (
	DriverPubSub = "pubsub"
	DriverKafka  = "kafka"
	DriverMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
// Which values are required depends on Role and QueueDriver; see Validate.
type Config struct {
	Role string `env:"RELAY_ROLE" envDefault:"all"`

	// Server
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`

	// Logging
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogEncoding    string `env:"LOG_ENCODING" envDefault:"json"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`

	// Queue
	QueueDriver          string   `env:"QUEUE_DRIVER" envDefault:"pubsub"`
	GCPProject           string   `env:"GOOGLE_CLOUD_PROJECT"`
	PubSubTopic          string   `env:"SYFTEN_PUBSUB_TOPIC"`
	PubSubTopicID        string   `env:"SYFTEN_PUBSUB_TOPIC_ID"`
	PubSubSubscription   string   `env:"SYFTEN_PUBSUB_SUBSCRIPTION"`
	PubSubSubscriptionID string   `env:"SYFTEN_PUBSUB_SUBSCRIPTION_ID"`
	KafkaBrokers         []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic           string   `env:"KAFKA_TOPIC" envDefault:"syften-items"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"syften-dispatch"`
	MemoryQueueCapacity  int      `env:"MEMORY_QUEUE_CAPACITY" envDefault:"1000"`

	// Fan-out and flow control
	PublishConcurrency int             `env:"PUBLISH_CONCURRENCY" envDefault:"16"`
	MaxInFlight        int             `env:"MAX_IN_FLIGHT" envDefault:"10"`
	RetryBackoff       []time.Duration `env:"RETRY_BACKOFF" envDefault:"5s,30s,120s" envSeparator:","`

	// Notification channel
	SlackBotToken    string        `env:"SLACK_BOT_TOKEN"`
	SlackTestChannel string        `env:"SLACK_TEST_CHANNEL"`
	SlackChannel     string        `env:"SLACK_CHANNEL"`
	SlackWebhookURL  string        `env:"SLACK_WEBHOOK_URL"`
	SlackAPIURL      string        `env:"SLACK_API_URL"`
	NotifyRateLimit  float64       `env:"NOTIFY_RATE_LIMIT" envDefault:"1"`
	NotifyBurst      int           `env:"NOTIFY_BURST" envDefault:"1"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"10s"`

	// Delivery log (optional)
	DatabaseURL        string        `env:"DATABASE_URL"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DeliveryRetention  time.Duration `env:"DELIVERY_RETENTION" envDefault:"168h"`
	DeliveryPruneEvery time.Duration `env:"DELIVERY_PRUNE_INTERVAL" envDefault:"1h"`
}

// Load reads an optional .env file, parses the environment and validates
// the result.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Ingests reports whether the process serves the inbound endpoint.
func (c *Config) Ingests() bool { return c.Role == RoleIngest || c.Role == RoleAll }

// Dispatches reports whether the process runs the consumer.
func (c *Config) Dispatches() bool { return c.Role == RoleDispatch || c.Role == RoleAll }

// Destination is the Slack channel notifications are posted to.
func (c *Config) Destination() string {
	if c.SlackTestChannel != "" {
		return c.SlackTestChannel
	}
	return c.SlackChannel
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:    c.LogLevel,
		Encoding: c.LogEncoding,
		DevMode:  c.LogDevelopment,
	}
}

// Topic resolves the Pub/Sub topic from SYFTEN_PUBSUB_TOPIC, which may be a
// full resource path or a bare id, or from GOOGLE_CLOUD_PROJECT plus
// SYFTEN_PUBSUB_TOPIC_ID.
func (c *Config) Topic() (Resource, error) {
	return resolve("topics", c.PubSubTopic, c.PubSubTopicID, c.GCPProject)
}

// Subscription resolves the Pub/Sub subscription the same way as Topic.
func (c *Config) Subscription() (Resource, error) {
	return resolve("subscriptions", c.PubSubSubscription, c.PubSubSubscriptionID, c.GCPProject)
}

// Validate checks the values required by the configured role and driver.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleIngest, RoleDispatch, RoleAll:
	default:
		errs = append(errs, fmt.Errorf("RELAY_ROLE must be one of ingest, dispatch, all; got %q", c.Role))
	}

	switch c.QueueDriver {
	case DriverPubSub, DriverKafka:
	case DriverMemory:
		if c.Role != RoleAll {
			errs = append(errs, errors.New("QUEUE_DRIVER=memory requires RELAY_ROLE=all"))
		}
		if c.MemoryQueueCapacity < 1 {
			errs = append(errs, errors.New("MEMORY_QUEUE_CAPACITY must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("QUEUE_DRIVER must be one of pubsub, kafka, memory; got %q", c.QueueDriver))
	}

	if c.Ingests() {
		switch c.QueueDriver {
		case DriverPubSub:
			if _, err := c.Topic(); err != nil {
				errs = append(errs, err)
			}
		case DriverKafka:
			errs = append(errs, c.validateKafka(false)...)
		}
		if c.PublishConcurrency < 1 {
			errs = append(errs, errors.New("PUBLISH_CONCURRENCY must be at least 1"))
		}
		if c.MaxBodyBytes < 1 {
			errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
		}
	}

	if c.Dispatches() {
		switch c.QueueDriver {
		case DriverPubSub:
			if _, err := c.Subscription(); err != nil {
				errs = append(errs, err)
			}
		case DriverKafka:
			errs = append(errs, c.validateKafka(true)...)
		}
		if c.Destination() == "" {
			errs = append(errs, errors.New("SLACK_TEST_CHANNEL or SLACK_CHANNEL is required"))
		}
		if c.SlackBotToken == "" && c.SlackWebhookURL == "" {
			errs = append(errs, errors.New("SLACK_BOT_TOKEN or SLACK_WEBHOOK_URL is required"))
		}
		if c.MaxInFlight < 1 {
			errs = append(errs, errors.New("MAX_IN_FLIGHT must be at least 1"))
		}
		if len(c.RetryBackoff) == 0 {
			errs = append(errs, errors.New("RETRY_BACKOFF must list at least one delay"))
		}
	}

	if c.DatabaseURL != "" && c.Dispatches() && c.DeliveryRetention > 0 && c.DeliveryPruneEvery <= 0 {
		errs = append(errs, errors.New("DELIVERY_PRUNE_INTERVAL must be positive when DELIVERY_RETENTION is set"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateKafka(consumer bool) []error {
	var errs []error
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required for the kafka driver"))
	}
	if c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required for the kafka driver"))
	}
	if consumer && c.KafkaConsumerGroup == "" {
		errs = append(errs, errors.New("KAFKA_CONSUMER_GROUP is required for the kafka driver"))
	}
	return errs
}

// Resource identifies a Pub/Sub topic or subscription.
type Resource struct {
	Project string
	ID      string
	kind    string
}

// String returns the full resource path, e.g. projects/p/topics/t.
func (r Resource) String() string {
	return "projects/" + r.Project + "/" + r.kind + "/" + r.ID
}

func resolve(kind, full, id, project string) (Resource, error) {
	value := full
	if value == "" {
		value = id
	}
	if value == "" {
		return Resource{}, fmt.Errorf("pubsub %s is not configured", strings.TrimSuffix(kind, "s"))
	}

	if strings.HasPrefix(value, "projects/") {
		parts := strings.Split(value, "/")
		if len(parts) != 4 || parts[1] == "" || parts[2] != kind || parts[3] == "" {
			return Resource{}, fmt.Errorf("malformed pubsub %s path %q", strings.TrimSuffix(kind, "s"), value)
		}
		return Resource{Project: parts[1], ID: parts[3], kind: kind}, nil
	}

	if project == "" {
		return Resource{}, fmt.Errorf("GOOGLE_CLOUD_PROJECT is required to resolve pubsub %s %q", strings.TrimSuffix(kind, "s"), value)
	}
	return Resource{Project: project, ID: value, kind: kind}, nil
}
