// Package config provides hierarchical configuration loading for the grid
// coordinator and agent binaries.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the grid core.
type Config struct {
	Coordinator Coordinator `yaml:"coordinator"`
	Agent       Agent       `yaml:"agent"`
	NATS        NATS        `yaml:"nats"`
	Redis       Redis       `yaml:"redis"`
	S3          S3          `yaml:"s3"`
	K8s         K8s         `yaml:"k8s"`
	Git         Git         `yaml:"git"`
	Credential  Credential  `yaml:"credential"`
	Idempotency Idempotency `yaml:"idempotency"`
	Logging     Logging     `yaml:"logging"`
	Breaker     Breaker     `yaml:"breaker"`
	Rate        Rate        `yaml:"rate"`
	Otel        Otel        `yaml:"otel"`
}

// Coordinator holds the coordinator service's listener and scheduling-pace
// configuration.
type Coordinator struct {
	BindAddr           string        `yaml:"bind_addr"`
	HealthGRPCAddr     string        `yaml:"health_grpc_addr"`
	JobSchemaPath      string        `yaml:"job_schema_path"` // empty uses the embedded default
	PollLimiterRPS     float64       `yaml:"poll_limiter_rps"`
	PollLimiterBurst   int           `yaml:"poll_limiter_burst"`
	SchedulerTickRPS   float64       `yaml:"scheduler_tick_rps"`
	SchedulerTickBurst int           `yaml:"scheduler_tick_burst"`
	AuditLogSize       int           `yaml:"audit_log_size"` // entries retained per job, process-lifetime only
	HeartbeatSweep     time.Duration `yaml:"heartbeat_sweep"`
}

// Agent holds the agent process's poll loop and deployment configuration.
type Agent struct {
	ID                    string             `yaml:"id"` // empty generates a random id at startup
	CoordinatorURL        string             `yaml:"coordinator_url"`
	PollInterval          time.Duration      `yaml:"poll_interval"`
	HeartbeatTTLMultiple  int                `yaml:"heartbeat_ttl_multiple"` // TTL = multiple * PollInterval
	UseKubernetes         bool               `yaml:"use_kubernetes"`
	DefaultInterpreterBin string             `yaml:"default_interpreter_bin"`
	Totals                map[string]float64 `yaml:"totals"`       // advertised resource capacity
	JobAffinity           string             `yaml:"job_affinity"` // restricts this agent to one job id
	WorkDir               string             `yaml:"work_dir"`
}

// NATS holds NATS JetStream configuration for the coordinator's event
// subjects and the idempotency KV bucket.
type NATS struct {
	URL string `yaml:"url"`
}

// Redis holds the agent-heartbeat liveness store configuration.
type Redis struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	HeartbeatTTL time.Duration `yaml:"heartbeat_ttl"`
}

// S3 holds the result-blob offload store configuration.
type S3 struct {
	Endpoint            string `yaml:"endpoint"` // empty uses AWS; set for MinIO
	Bucket              string `yaml:"bucket"`
	Region              string `yaml:"region"`
	AccessKeyID         string `yaml:"access_key_id"`
	SecretAccessKey     string `yaml:"secret_access_key"`
	UseSSL              bool   `yaml:"use_ssl"`
	OffloadThresholdKiB int    `yaml:"offload_threshold_kib"` // not read; the coordinator offloads pickles over resultstore.InlineThresholdBytes (256 KiB)
}

// K8s holds the Kubernetes-backed container runner configuration.
type K8s struct {
	Enabled    bool   `yaml:"enabled"`
	InCluster  bool   `yaml:"in_cluster"`
	Kubeconfig string `yaml:"kubeconfig"`
	Namespace  string `yaml:"namespace"`
}

// Git holds deployment-resolution git pool configuration.
type Git struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Credential holds the credential-resolution cache configuration.
type Credential struct {
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	L1MaxSizeMiB int64         `yaml:"l1_max_size_mib"`
}

// Idempotency holds the client-facing add_job idempotency-key store config.
type Idempotency struct {
	Bucket string        `yaml:"bucket"` // JetStream KV bucket name
	TTL    time.Duration `yaml:"ttl"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level       string `yaml:"level"`
	Service     string `yaml:"service"`
	Async       bool   `yaml:"async"`
	AsyncBuffer int    `yaml:"async_buffer"`
	AsyncWorkers int   `yaml:"async_workers"`
}

// Breaker holds circuit breaker configuration for external dependency calls
// (secret manager credential fetch, S3 offload).
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds the per-IP HTTP rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Otel holds OpenTelemetry trace/metric export configuration.
type Otel struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Coordinator: Coordinator{
			BindAddr:           ":8080",
			HealthGRPCAddr:     ":8090",
			PollLimiterRPS:     50,
			PollLimiterBurst:   100,
			SchedulerTickRPS:   20,
			SchedulerTickBurst: 5,
			AuditLogSize:       200,
			HeartbeatSweep:     2 * time.Second,
		},
		Agent: Agent{
			CoordinatorURL:       "http://localhost:8080",
			PollInterval:         5 * time.Second,
			HeartbeatTTLMultiple: 3,
			Totals:               map[string]float64{"cpu": 4, "memory_gib": 16},
			WorkDir:              "/tmp/grid-agent",
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Redis: Redis{
			Addr:         "localhost:6379",
			HeartbeatTTL: 15 * time.Second,
		},
		S3: S3{
			Region:              "us-east-1",
			OffloadThresholdKiB: 256,
		},
		K8s: K8s{
			Namespace: "default",
		},
		Git: Git{
			MaxConcurrent: 4,
		},
		Credential: Credential{
			CacheTTL:     5 * time.Minute,
			L1MaxSizeMiB: 64,
		},
		Idempotency: Idempotency{
			Bucket: "grid-idempotency",
			TTL:    24 * time.Hour,
		},
		Logging: Logging{
			Level:        "info",
			Service:      "grid-coordinator",
			Async:        true,
			AsyncBuffer:  4096,
			AsyncWorkers: 2,
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
		Otel: Otel{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
		},
	}
}
