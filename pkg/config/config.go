// Package config loads the recognised configuration options for both the
// Session Controller and the WebSocket Gateway from the environment (and,
// optionally, a YAML file), using Viper the way the zero-trust reference
// loads its own config.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every recognised key, e.g. API_KEY becomes
// CLISCALE_API_KEY in the environment.
const EnvPrefix = "CLISCALE"

// Controller holds the Session Controller's configuration.
type Controller struct {
	Addr             string
	APIKey           string
	SigningKeyPEM    string
	StorePath        string
	StorePoolMax     int
	StorePoolIdle    int
	StoreAcquire     time.Duration
	OrchNamespace    string
	WorkerImage      string
	ContainerdSocket string
	GatewayAddr      string
	SessionTTL       time.Duration
	TokenTTL         time.Duration
	ResolveDeadline  time.Duration
	PruneInterval    time.Duration
	RateLimitPerMin  int
	LogLevel         string
	LogJSON          bool
	PublicBaseURL    string
}

// Gateway holds the WebSocket Gateway's configuration.
type Gateway struct {
	Addr           string
	StorePath      string
	ControllerURL  string
	JWKSCacheTTL   time.Duration
	IdleTimeout    time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	BackpressureTO time.Duration
	WorkerHealthTO time.Duration
	LogLevel       string
	LogJSON        bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigName("cliscale")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // config file is optional; env vars always win via AutomaticEnv
	return v
}

// LoadController reads Controller configuration from the environment.
// API_KEY and GATEWAY_ADDR are mandatory and token_ttl must not exceed
// session_ttl; any violation is returned as an error, which the
// controller binary treats as a fatal startup error.
func LoadController() (*Controller, error) {
	v := newViper()

	v.SetDefault("addr", ":8080")
	v.SetDefault("store_path", "./data/controller")
	v.SetDefault("store_pool_max", 20)
	v.SetDefault("store_pool_idle", 5)
	v.SetDefault("store_acquire_timeout", 5*time.Second)
	v.SetDefault("orchestrator_namespace", "cliscale")
	v.SetDefault("worker_image", "cliscale/worker:latest")
	v.SetDefault("containerd_socket", "/run/containerd/containerd.sock")
	v.SetDefault("gateway_addr", "")
	v.SetDefault("session_ttl", 10*time.Minute)
	v.SetDefault("token_ttl", 5*time.Minute)
	v.SetDefault("resolve_deadline", 30*time.Second)
	v.SetDefault("prune_interval", 60*time.Second)
	v.SetDefault("rate_limit_per_minute", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("public_base_url", "http://localhost:8080")

	cfg := &Controller{
		Addr:             v.GetString("addr"),
		APIKey:           v.GetString("api_key"),
		SigningKeyPEM:    v.GetString("signing_key_pem"),
		StorePath:        v.GetString("store_path"),
		StorePoolMax:     v.GetInt("store_pool_max"),
		StorePoolIdle:    v.GetInt("store_pool_idle"),
		StoreAcquire:     v.GetDuration("store_acquire_timeout"),
		OrchNamespace:    v.GetString("orchestrator_namespace"),
		WorkerImage:      v.GetString("worker_image"),
		ContainerdSocket: v.GetString("containerd_socket"),
		GatewayAddr:      v.GetString("gateway_addr"),
		SessionTTL:       v.GetDuration("session_ttl"),
		TokenTTL:         v.GetDuration("token_ttl"),
		ResolveDeadline:  v.GetDuration("resolve_deadline"),
		PruneInterval:    v.GetDuration("prune_interval"),
		RateLimitPerMin:  v.GetInt("rate_limit_per_minute"),
		LogLevel:         v.GetString("log_level"),
		LogJSON:          v.GetBool("log_json"),
		PublicBaseURL:    v.GetString("public_base_url"),
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("config: %s_API_KEY is required", EnvPrefix)
	}
	if cfg.GatewayAddr == "" {
		return nil, fmt.Errorf("config: %s_GATEWAY_ADDR is required", EnvPrefix)
	}
	if cfg.TokenTTL > cfg.SessionTTL {
		return nil, fmt.Errorf("config: token_ttl (%s) must not exceed session_ttl (%s)", cfg.TokenTTL, cfg.SessionTTL)
	}

	return cfg, nil
}

// LoadGateway reads Gateway configuration from the environment.
func LoadGateway() (*Gateway, error) {
	v := newViper()

	v.SetDefault("addr", ":8081")
	v.SetDefault("store_path", "./data/controller")
	v.SetDefault("controller_url", "http://localhost:8080")
	v.SetDefault("jwks_cache_ttl", 5*time.Minute)
	v.SetDefault("idle_timeout", time.Hour)
	v.SetDefault("ping_interval", 30*time.Second)
	v.SetDefault("pong_timeout", 60*time.Second)
	v.SetDefault("backpressure_timeout", 10*time.Second)
	v.SetDefault("worker_health_timeout", 3*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	cfg := &Gateway{
		Addr:           v.GetString("addr"),
		StorePath:      v.GetString("store_path"),
		ControllerURL:  v.GetString("controller_url"),
		JWKSCacheTTL:   v.GetDuration("jwks_cache_ttl"),
		IdleTimeout:    v.GetDuration("idle_timeout"),
		PingInterval:   v.GetDuration("ping_interval"),
		PongTimeout:    v.GetDuration("pong_timeout"),
		BackpressureTO: v.GetDuration("backpressure_timeout"),
		WorkerHealthTO: v.GetDuration("worker_health_timeout"),
		LogLevel:       v.GetString("log_level"),
		LogJSON:        v.GetBool("log_json"),
	}

	if cfg.ControllerURL == "" {
		return nil, fmt.Errorf("config: %s_CONTROLLER_URL is required", EnvPrefix)
	}

	return cfg, nil
}
