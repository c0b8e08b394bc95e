// Package config provides configuration structures and validation for the
// custody ledger processes. Values come from an optional .env file and the
// process environment, see load.go.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the complete application configuration. Both binaries load the
// same structure; each one only touches the sections it needs.
type Config struct {
	Application    ApplicationConfig
	Logging        LoggingConfig
	Server         ServerConfig
	Kafka          KafkaConfig
	Nats           NatsConfig
	Events         EventsConfig
	Postgres       PostgresConfig
	MongoDB        MongoDBConfig
	Outbox         OutboxConfig
	WorkerPool     WorkerPoolConfig
	Commands       CommandsConfig
	Node           NodeConfig
	Etcd           EtcdConfig
	Deposits       DepositsConfig
	Payouts        PayoutsConfig
	Reconciliation ReconciliationConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains the ops HTTP server settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration for wallet commands and
// balance events.
type KafkaConfig struct {
	Brokers           string
	CommandTopic      string
	EventsTopic       string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// NatsConfig contains the JetStream settings used when EVENTS_TRANSPORT=nats
type NatsConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
}

// EventsConfig selects the balance event transport ("kafka" or "nats")
type EventsConfig struct {
	Transport string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the report store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// OutboxConfig contains outbox relay configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
	RelayLockLease   time.Duration // lease on the cross-worker relay lock
	Retention        time.Duration // how long PUBLISHED rows are kept
	PurgeInterval    time.Duration // 0 disables purging
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// CommandsConfig controls how wallet commands are processed
type CommandsConfig struct {
	MaxConflictRetries int
}

// NodeConfig describes the bitcoind-compatible JSON-RPC wallet holding the
// pooled funds.
type NodeConfig struct {
	Host       string
	User       string
	Pass       string
	Network    string // mainnet, testnet3, regtest or signet
	RPCTimeout time.Duration
}

// EtcdConfig configures the lease lock service
type EtcdConfig struct {
	Endpoints   string
	DialTimeout time.Duration
	Username    string
	Password    string
	LockPrefix  string
}

// DepositsConfig configures address allocation and deposit polling
type DepositsConfig struct {
	PollInterval      time.Duration
	MinConfirmations  int
	PoolRefillSize    int
	PoolLowWatermark  int
	ClaimCandidates   int
	MaxClaimAttempts  int
	RefillLockLease   time.Duration
	ClaimRetryBackoff time.Duration
	PoolCheckInterval time.Duration
}

// PayoutsConfig configures payout requests and batch execution
type PayoutsConfig struct {
	BatchInterval  time.Duration
	MaxBatchSize   int
	BatchThreshold int
	DefaultExpiry  time.Duration
	LockLease      time.Duration
	FeeWalletID    string
}

// ReconciliationConfig configures the reconciliation checker
type ReconciliationConfig struct {
	Interval         time.Duration
	CorrectCache     bool
	CheckNodeBalance bool
	MinConfirmations int
}

// FeeWallet returns the parsed fee wallet id. validate guarantees it parses.
func (p PayoutsConfig) FeeWallet() uuid.UUID {
	id, _ := uuid.Parse(p.FeeWalletID)
	return id
}

// BrokerList splits the comma separated broker string
func (k KafkaConfig) BrokerList() []string {
	return splitList(k.Brokers)
}

// EndpointList splits the comma separated etcd endpoints
func (e EtcdConfig) EndpointList() []string {
	return splitList(e.Endpoints)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// validate checks every section and reports all problems at once
func (c *Config) validate() error {
	var validationErrors []string
	fail := func(msg string) {
		validationErrors = append(validationErrors, msg)
	}

	// Server
	if c.Server.Port <= 0 {
		fail("SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		fail("SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		fail("SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		fail("SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		fail("SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Kafka
	if len(c.Kafka.BrokerList()) == 0 {
		fail("KAFKA_BROKERS is required")
	}
	if c.Kafka.CommandTopic == "" {
		fail("KAFKA_COMMAND_TOPIC is required")
	}
	if c.Kafka.EventsTopic == "" {
		fail("KAFKA_EVENTS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		fail("KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		fail("KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		fail("KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		fail("KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		fail("KAFKA_DLQ_TOPIC is required")
	}

	// Events
	switch c.Events.Transport {
	case "kafka":
	case "nats":
		if c.Nats.URL == "" {
			fail("NATS_URL is required when EVENTS_TRANSPORT=nats")
		}
		if c.Nats.StreamName == "" || c.Nats.SubjectPrefix == "" {
			fail("NATS_STREAM_NAME and NATS_SUBJECT_PREFIX are required when EVENTS_TRANSPORT=nats")
		}
	default:
		fail("EVENTS_TRANSPORT must be one of kafka, nats")
	}

	// PostgreSQL
	if c.Postgres.URL == "" {
		fail("POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		fail("POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		fail("POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		fail("POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		fail("POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// MongoDB
	if c.MongoDB.URI == "" {
		fail("MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		fail("MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		fail("MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		fail("MONGO_MAX_POOL_SIZE must be greater than 0")
	}

	// Outbox
	if c.Outbox.PollingInterval <= 0 {
		fail("OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		fail("OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		fail("OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}
	if c.Outbox.RelayLockLease <= 0 {
		fail("OUTBOX_RELAY_LOCK_LEASE must be greater than 0")
	}
	if c.Outbox.PurgeInterval > 0 && c.Outbox.Retention <= 0 {
		fail("OUTBOX_RETENTION must be greater than 0 when purging is enabled")
	}

	if c.WorkerPool.Size <= 0 {
		fail("WORKER_POOL_SIZE must be greater than 0")
	}
	if c.Commands.MaxConflictRetries < 0 {
		fail("COMMAND_MAX_CONFLICT_RETRIES must not be negative")
	}

	// Node
	if c.Node.Host == "" {
		fail("NODE_RPC_HOST is required")
	}
	switch c.Node.Network {
	case "mainnet", "testnet3", "regtest", "signet":
	default:
		fail("NODE_NETWORK must be one of mainnet, testnet3, regtest, signet")
	}
	if c.Node.RPCTimeout <= 0 {
		fail("NODE_RPC_TIMEOUT must be greater than 0")
	}

	// Etcd
	if len(c.Etcd.EndpointList()) == 0 {
		fail("ETCD_ENDPOINTS is required")
	}
	if c.Etcd.DialTimeout <= 0 {
		fail("ETCD_DIAL_TIMEOUT must be greater than 0")
	}

	// Deposits
	if c.Deposits.PollInterval <= 0 {
		fail("DEPOSIT_POLL_INTERVAL must be greater than 0")
	}
	if c.Deposits.MinConfirmations <= 0 {
		fail("DEPOSIT_MIN_CONFIRMATIONS must be greater than 0")
	}
	if c.Deposits.PoolRefillSize <= 0 {
		fail("DEPOSIT_POOL_REFILL_SIZE must be greater than 0")
	}
	if c.Deposits.ClaimCandidates <= 0 {
		fail("DEPOSIT_CLAIM_CANDIDATES must be greater than 0")
	}
	if c.Deposits.MaxClaimAttempts <= 0 {
		fail("DEPOSIT_MAX_CLAIM_ATTEMPTS must be greater than 0")
	}
	if c.Deposits.RefillLockLease < time.Second {
		fail("DEPOSIT_REFILL_LOCK_LEASE must be at least 1s")
	}

	// Payouts
	if c.Payouts.BatchInterval <= 0 {
		fail("PAYOUT_BATCH_INTERVAL must be greater than 0")
	}
	if c.Payouts.MaxBatchSize <= 0 {
		fail("PAYOUT_MAX_BATCH_SIZE must be greater than 0")
	}
	if c.Payouts.BatchThreshold <= 0 {
		fail("PAYOUT_BATCH_THRESHOLD must be greater than 0")
	}
	if c.Payouts.DefaultExpiry <= 0 {
		fail("PAYOUT_DEFAULT_EXPIRY must be greater than 0")
	}
	if c.Payouts.LockLease < time.Second {
		fail("PAYOUT_LOCK_LEASE must be at least 1s")
	}
	if _, err := uuid.Parse(c.Payouts.FeeWalletID); err != nil {
		fail("PAYOUT_FEE_WALLET_ID must be a valid UUID")
	}

	// Reconciliation
	if c.Reconciliation.Interval <= 0 {
		fail("RECONCILE_INTERVAL must be greater than 0")
	}
	if c.Reconciliation.MinConfirmations <= 0 {
		fail("RECONCILE_MIN_CONFIRMATIONS must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
