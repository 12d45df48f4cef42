// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"google.golang.org/protobuf/types/known/durationpb"
)

// Bootstrap is the root configuration for the gateway process.
type Bootstrap struct {
	Server       *Server
	Data         *Data
	Engines      *Engines
	Orchestrator *Orchestrator
	Log          *Log
}

// Server holds transport configuration.
type Server struct {
	Http *Server_HTTP
	Auth *Server_Auth
}

// Server_Auth configures bearer-token verification on protected routes.
type Server_Auth struct {
	// JwtSecret is the HS256 signing secret shared with the auth engine.
	// Empty disables verification and leaves protected routes open.
	JwtSecret string
	// ClaimCacheSize bounds the LRU cache of verified token claims.
	ClaimCacheSize int32
}

// Server_HTTP configures the HTTP listener.
type Server_HTTP struct {
	Network string
	Addr    string
	Timeout *durationpb.Duration
}

// Data holds data layer configuration.
type Data struct {
	Redis *Data_Redis
}

// Data_Redis configures the Redis connection used for rate limiting
// and snapshot caching.
type Data_Redis struct {
	Network      string
	Addr         string
	ReadTimeout  *durationpb.Duration
	WriteTimeout *durationpb.Duration
}

// Engines maps downstream engine keys to their base URLs and carries
// the per-call timeout defaults.
type Engines struct {
	// Urls maps engine key (e.g. "neural_network") to base URL.
	Urls map[string]string
	// CallTimeout is the default timeout for data/rule engine calls.
	CallTimeout *durationpb.Duration
	// GenerativeTimeout is the timeout for LLM-backed engine calls.
	GenerativeTimeout *durationpb.Duration
	// HealthTimeout is the per-probe timeout for health checks.
	HealthTimeout *durationpb.Duration
}

// Orchestrator holds composite-flow level settings.
type Orchestrator struct {
	Breaker   *Orchestrator_Breaker
	RateLimit *Orchestrator_RateLimit
	Audit     *Orchestrator_Audit
}

// Orchestrator_Breaker configures the per-engine circuit breaker.
type Orchestrator_Breaker struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker open.
	FailureThreshold int32
	// Cooldown is the fixed recovery window before a half-open probe is
	// allowed. No exponential backoff.
	Cooldown *durationpb.Duration
}

// Orchestrator_RateLimit configures per-client-IP rate limiting.
type Orchestrator_RateLimit struct {
	// PerMinute is the per-IP requests-per-minute window limit.
	PerMinute int32
	// BurstPerSecond is the per-IP per-second burst guard.
	BurstPerSecond int32
}

// Orchestrator_Audit configures the fire-and-forget audit emitter.
type Orchestrator_Audit struct {
	// QueueSize is the buffered channel capacity; events beyond it are dropped.
	QueueSize int32
}

// Log configures the Zap logger.
type Log struct {
	Level      string
	Format     string
	Env        string
	OutputFile string
}
