package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// engineKeys lists every downstream engine the orchestrator can reach.
// Each engine runs on its own port locally; in production these would be
// service DNS names.
var engineKeys = map[string]int{
	"login_register":      8001,
	"identity":            8002,
	"raw_data_store":      8003,
	"metadata":            8004,
	"processed_metadata":  8005,
	"vector_database":     8006,
	"neural_network":      8007,
	"anomaly_detection":   8008,
	"chunks":              8010,
	"policy_fetching":     8011,
	"json_user_info":      8012,
	"analytics_warehouse": 8013,
	"dashboard_bff":       8014,
	"eligibility_rules":   8015,
	"deadline_monitoring": 8016,
	"simulation":          8017,
	"gov_data_sync":       8018,
	"trust_scoring":       8019,
	"speech_interface":    8020,
	"doc_understanding":   8021,
}

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies defaults,
// and allows overrides from environment variables prefixed with BHARATSETU_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Parameters:
//   - configPath: Path to the configuration file (optional; defaults apply)
//
// Returns:
//   - *Bootstrap: Loaded configuration
//   - error: Configuration loading or validation error
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support with BHARATSETU_ prefix
	v.SetEnvPrefix("BHARATSETU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without BHARATSETU_ prefix) for compatibility
	_ = v.BindEnv("data.redis.addr", "REDIS_ADDR", "BHARATSETU_DATA_REDIS_ADDR")
	_ = v.BindEnv("server.auth.jwt_secret", "JWT_SECRET_KEY", "BHARATSETU_SERVER_AUTH_JWT_SECRET")

	// Load configuration file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// If config file is specified but not found, return error
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Parse configuration into Bootstrap structure
	bc := &Bootstrap{
		Server: &Server{
			Http: &Server_HTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
			Auth: &Server_Auth{
				JwtSecret:      v.GetString("server.auth.jwt_secret"),
				ClaimCacheSize: v.GetInt32("server.auth.claim_cache_size"),
			},
		},
		Data: &Data{
			Redis: &Data_Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
		},
		Engines: &Engines{
			Urls:              engineURLs(v),
			CallTimeout:       durationpb.New(v.GetDuration("engines.call_timeout")),
			GenerativeTimeout: durationpb.New(v.GetDuration("engines.generative_timeout")),
			HealthTimeout:     durationpb.New(v.GetDuration("engines.health_timeout")),
		},
		Orchestrator: &Orchestrator{
			Breaker: &Orchestrator_Breaker{
				FailureThreshold: v.GetInt32("orchestrator.breaker.failure_threshold"),
				Cooldown:         durationpb.New(v.GetDuration("orchestrator.breaker.cooldown")),
			},
			RateLimit: &Orchestrator_RateLimit{
				PerMinute:      v.GetInt32("orchestrator.rate_limit.per_minute"),
				BurstPerSecond: v.GetInt32("orchestrator.rate_limit.burst_per_second"),
			},
			Audit: &Orchestrator_Audit{
				QueueSize: v.GetInt32("orchestrator.audit.queue_size"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Env:        v.GetString("log.env"),
			OutputFile: v.GetString("log.output_file"),
		},
	}

	// Validate required fields
	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// engineURLs resolves the engine URL map: per-engine override from config,
// falling back to the local port map.
func engineURLs(v *viper.Viper) map[string]string {
	urls := make(map[string]string, len(engineKeys))
	host := v.GetString("engines.host")
	for key, port := range engineKeys {
		urls[key] = fmt.Sprintf("http://%s:%d", host, port)
	}
	for key, url := range v.GetStringMapString("engines.urls") {
		urls[key] = url
	}
	return urls
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8000")
	v.SetDefault("server.http.timeout", 5*time.Minute)
	v.SetDefault("server.auth.claim_cache_size", 1024)

	// Data defaults
	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	// Engine defaults: 15s for data/rule engines, 20s for generative calls,
	// 5s for health probes
	v.SetDefault("engines.host", "127.0.0.1")
	v.SetDefault("engines.call_timeout", 15*time.Second)
	v.SetDefault("engines.generative_timeout", 20*time.Second)
	v.SetDefault("engines.health_timeout", 5*time.Second)

	// Orchestrator defaults
	v.SetDefault("orchestrator.breaker.failure_threshold", 5)
	v.SetDefault("orchestrator.breaker.cooldown", 30*time.Second)
	v.SetDefault("orchestrator.rate_limit.per_minute", 100)
	v.SetDefault("orchestrator.rate_limit.burst_per_second", 10)
	v.SetDefault("orchestrator.audit.queue_size", 1000)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing or invalid fields.
func Validate(bc *Bootstrap) error {
	var badFields []string

	if bc.Server == nil || bc.Server.Http == nil || bc.Server.Http.Addr == "" {
		badFields = append(badFields, "server.http.addr")
	}

	if bc.Engines == nil || len(bc.Engines.Urls) == 0 {
		badFields = append(badFields, "engines.urls")
	}

	if bc.Orchestrator == nil || bc.Orchestrator.Breaker == nil ||
		bc.Orchestrator.Breaker.FailureThreshold <= 0 {
		badFields = append(badFields, "orchestrator.breaker.failure_threshold (must be > 0)")
	}

	if bc.Orchestrator != nil && bc.Orchestrator.Breaker != nil &&
		bc.Orchestrator.Breaker.Cooldown.AsDuration() <= 0 {
		badFields = append(badFields, "orchestrator.breaker.cooldown (must be > 0)")
	}

	if len(badFields) > 0 {
		return fmt.Errorf("missing or invalid configuration fields: %s", strings.Join(badFields, ", "))
	}

	return nil
}
