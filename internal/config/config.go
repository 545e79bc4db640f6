// Package config loads the bridge's runtime settings: the destination and
// source endpoints, OIDC credentials, ledger DSN, and the configuration
// folder holding type_to_aiod_endpoint.json, platform.json and
// translators/*.json.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings is the fully-resolved configuration for one bridge run.
type Settings struct {
	ConfigFolder string

	SourceEndpoint string

	DestinationBaseURL      string
	DestinationOIDCIssuer   string
	DestinationOIDCClientID string
	DestinationOIDCSecret   string
	DestinationAccessToken  string // bypasses OIDC discovery when set

	LedgerDSN       string
	TimestampFormat string

	RedisURL string // empty disables the run lock

	LogLevel  string
	LogFormat string

	StatusAddr string // empty disables the status/metrics server
}

// Load builds Settings from a config file (if present) and environment
// variables prefixed AIOD_BRIDGE_, the same discovery shape as the
// teacher's cli bootstrap (viper.AutomaticEnv + an optional config file).
func Load(v *viper.Viper) (Settings, error) {
	v.SetEnvPrefix("AIOD_BRIDGE")
	v.AutomaticEnv()

	v.SetDefault("config_folder", "./config")
	v.SetDefault("timestamp_format", "2006-01-02T15:04:05.000Z")
	v.SetDefault("ledger_dsn", "json:./memory.json")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	s := Settings{
		ConfigFolder:            v.GetString("config_folder"),
		SourceEndpoint:          v.GetString("source_endpoint"),
		DestinationBaseURL:      v.GetString("destination_base_url"),
		DestinationOIDCIssuer:   v.GetString("destination_oidc_issuer"),
		DestinationOIDCClientID: v.GetString("destination_oidc_client_id"),
		DestinationOIDCSecret:   v.GetString("destination_oidc_client_secret"),
		DestinationAccessToken:  v.GetString("destination_access_token"),
		LedgerDSN:               v.GetString("ledger_dsn"),
		TimestampFormat:         v.GetString("timestamp_format"),
		RedisURL:                v.GetString("redis_url"),
		LogLevel:                v.GetString("log_level"),
		LogFormat:               v.GetString("log_format"),
		StatusAddr:              v.GetString("status_addr"),
	}

	if s.SourceEndpoint == "" {
		return s, fmt.Errorf("config: source_endpoint must be set")
	}
	if s.DestinationBaseURL == "" {
		return s, fmt.Errorf("config: destination_base_url must be set")
	}

	return s, nil
}

// RunLockTTL is how long the optional Redis run lock is held before it is
// considered stale and safe for another process to steal.
const RunLockTTL = 2 * time.Hour
