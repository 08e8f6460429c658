package config

import (
	"os"
	"strconv"
	"time"
)

// ConflictPolicy decides what happens when two operations race on the
// same team: the second either fails fast or waits its turn.
type ConflictPolicy string

const (
	ConflictReject ConflictPolicy = "reject"
	ConflictQueue  ConflictPolicy = "queue"
)

type Config struct {
	// Registry
	RegistryPath string

	// HAProxy control plane
	HAProxyDataplaneURL string
	HAProxyStatsURL     string
	HAProxyUser         string
	HAProxyPassword     string
	FrontendURL         string
	JenkinsDomain       string

	// Storage
	StorageRoot string

	// Jenkins API access for quiescence calls
	SlotHost        string
	JenkinsUser     string
	JenkinsAPIToken string

	// Health gate policy
	HealthAttempts     int
	HealthDelay        time.Duration
	HealthProbeTimeout time.Duration
	VerifyProbeTimeout time.Duration

	// Coordinator policy
	ProvisionRetries   int
	PublishRetries     int
	QuiesceGracePeriod time.Duration
	ConflictPolicy     ConflictPolicy

	// API server
	Port        string
	ValidSecret string

	// Audit store
	AuditDBPath string

	// New Relic
	NewRelicLicense string
	NewRelicAppName string
	NewRelicEnabled bool
}

func Load() *Config {
	newRelicEnabledStr := getEnv("NEW_RELIC_ENABLED", "false")
	newRelicEnabled, err := strconv.ParseBool(newRelicEnabledStr)
	if err != nil {
		newRelicEnabled = false
	}

	conflictPolicy := ConflictPolicy(getEnv("CONFLICT_POLICY", string(ConflictReject)))
	if conflictPolicy != ConflictReject && conflictPolicy != ConflictQueue {
		conflictPolicy = ConflictReject
	}

	return &Config{
		RegistryPath:        getEnv("TEAM_REGISTRY_PATH", "/etc/jenkins-ha/teams.yml"),
		HAProxyDataplaneURL: getEnv("HAPROXY_DATAPLANE_URL", "http://127.0.0.1:5555"),
		HAProxyStatsURL:     getEnv("HAPROXY_STATS_URL", "http://127.0.0.1:8404/stats"),
		HAProxyUser:         getEnv("HAPROXY_USER", "admin"),
		HAProxyPassword:     getEnv("HAPROXY_PASSWORD", ""),
		FrontendURL:         getEnv("FRONTEND_URL", "http://127.0.0.1:8080"),
		JenkinsDomain:       getEnv("JENKINS_DOMAIN", "jenkins.local"),
		StorageRoot:         getEnv("STORAGE_ROOT", "/srv/jenkins"),
		SlotHost:            getEnv("SLOT_HOST", "127.0.0.1"),
		JenkinsUser:         getEnv("JENKINS_USER", "admin"),
		JenkinsAPIToken:     getEnv("JENKINS_API_TOKEN", ""),
		HealthAttempts:      getEnvInt("HEALTH_ATTEMPTS", 3),
		HealthDelay:         getEnvDuration("HEALTH_DELAY", 5*time.Second),
		HealthProbeTimeout:  getEnvDuration("HEALTH_PROBE_TIMEOUT", 10*time.Second),
		VerifyProbeTimeout:  getEnvDuration("VERIFY_PROBE_TIMEOUT", 10*time.Second),
		ProvisionRetries:    getEnvInt("PROVISION_RETRIES", 3),
		PublishRetries:      getEnvInt("PUBLISH_RETRIES", 3),
		QuiesceGracePeriod:  getEnvDuration("QUIESCE_GRACE_PERIOD", 30*time.Second),
		ConflictPolicy:      conflictPolicy,
		Port:                getEnv("PORT", "16266"),
		ValidSecret:         getEnv("API_SECRET", "change-this-64-character-secret-key-before-running-in-production"),
		AuditDBPath:         getEnv("AUDIT_DB_PATH", "./switch-audit.db"),
		NewRelicLicense:     getEnv("NEW_RELIC_LICENSE_KEY", ""),
		NewRelicAppName:     getEnv("NEW_RELIC_APP_NAME", "jenkins-ha-orchestrator"),
		NewRelicEnabled:     newRelicEnabled,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
