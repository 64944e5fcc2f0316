package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "grid.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Coordinator.BindAddr, "GRID_COORDINATOR_BIND_ADDR")
	setString(&cfg.Coordinator.HealthGRPCAddr, "GRID_COORDINATOR_HEALTH_GRPC_ADDR")
	setString(&cfg.Coordinator.JobSchemaPath, "GRID_JOB_SCHEMA_PATH")
	setFloat64(&cfg.Coordinator.PollLimiterRPS, "GRID_POLL_LIMITER_RPS")
	setInt(&cfg.Coordinator.PollLimiterBurst, "GRID_POLL_LIMITER_BURST")
	setFloat64(&cfg.Coordinator.SchedulerTickRPS, "GRID_SCHEDULER_TICK_RPS")
	setInt(&cfg.Coordinator.SchedulerTickBurst, "GRID_SCHEDULER_TICK_BURST")
	setInt(&cfg.Coordinator.AuditLogSize, "GRID_AUDIT_LOG_SIZE")
	setDuration(&cfg.Coordinator.HeartbeatSweep, "GRID_HEARTBEAT_SWEEP")

	setString(&cfg.Agent.ID, "GRID_AGENT_ID")
	setString(&cfg.Agent.CoordinatorURL, "GRID_AGENT_COORDINATOR_URL")
	setDuration(&cfg.Agent.PollInterval, "GRID_AGENT_POLL_INTERVAL")
	setInt(&cfg.Agent.HeartbeatTTLMultiple, "GRID_AGENT_HEARTBEAT_TTL_MULTIPLE")
	setBool(&cfg.Agent.UseKubernetes, "GRID_AGENT_USE_KUBERNETES")
	setString(&cfg.Agent.DefaultInterpreterBin, "GRID_AGENT_DEFAULT_INTERPRETER_BIN")
	setString(&cfg.Agent.JobAffinity, "GRID_AGENT_JOB_AFFINITY")
	setString(&cfg.Agent.WorkDir, "GRID_AGENT_WORK_DIR")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setDuration(&cfg.Redis.HeartbeatTTL, "GRID_HEARTBEAT_TTL")

	setString(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3.Bucket, "S3_BUCKET")
	setString(&cfg.S3.Region, "S3_REGION")
	setString(&cfg.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&cfg.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setInt(&cfg.S3.OffloadThresholdKiB, "GRID_RESULT_OFFLOAD_THRESHOLD_KIB")

	setBool(&cfg.K8s.Enabled, "GRID_K8S_ENABLED")
	setBool(&cfg.K8s.InCluster, "GRID_K8S_IN_CLUSTER")
	setString(&cfg.K8s.Kubeconfig, "KUBECONFIG")
	setString(&cfg.K8s.Namespace, "GRID_K8S_NAMESPACE")

	setInt(&cfg.Git.MaxConcurrent, "GRID_GIT_MAX_CONCURRENT")

	setDuration(&cfg.Credential.CacheTTL, "GRID_CREDENTIAL_CACHE_TTL")
	setInt64(&cfg.Credential.L1MaxSizeMiB, "GRID_CREDENTIAL_CACHE_SIZE_MIB")

	setString(&cfg.Idempotency.Bucket, "GRID_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "GRID_IDEMPOTENCY_TTL")

	setString(&cfg.Logging.Level, "GRID_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GRID_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "GRID_LOG_ASYNC")
	setInt(&cfg.Logging.AsyncBuffer, "GRID_LOG_ASYNC_BUFFER")
	setInt(&cfg.Logging.AsyncWorkers, "GRID_LOG_ASYNC_WORKERS")

	setInt(&cfg.Breaker.MaxFailures, "GRID_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GRID_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "GRID_RATE_RPS")
	setInt(&cfg.Rate.Burst, "GRID_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "GRID_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "GRID_RATE_MAX_IDLE_TIME")

	setBool(&cfg.Otel.Enabled, "GRID_OTEL_ENABLED")
	setString(&cfg.Otel.OTLPEndpoint, "GRID_OTEL_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Coordinator.BindAddr == "" {
		return errors.New("coordinator.bind_addr is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Git.MaxConcurrent < 1 {
		return errors.New("git.max_concurrent must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
