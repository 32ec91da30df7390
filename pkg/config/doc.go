// Package config provides configuration management for Mercator Dispatch.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("dispatch.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("dispatch.yaml")
//
// Passing an empty path to LoadConfigWithEnvOverrides starts from defaults.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention DISPATCH_SECTION_FIELD.
// For example:
//
//   - DISPATCH_HANDLER_CONCURRENCY overrides handler.concurrency
//   - DISPATCH_POOL_ADMIN_ADDRESS overrides pool.admin_address
//   - DISPATCH_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
// Values are applied in the following order (later overrides earlier):
//
//  1. Values from YAML file
//  2. Default values for anything still unset
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Hot Reload
//
// Watcher observes the configuration file and swaps the global instance after
// each valid edit. Only the log level and the soft termination linger time
// take effect on a running process; socket and worker settings are fixed at
// startup.
//
// # Example Configuration
//
//	handler:
//	  app_group_name: "/srv/app"
//	  concurrency: 4
//	  soft_termination_linger_time: 3s
//
//	pool:
//	  admin_address: "unix:/run/pool/admin.sock"
//	  account_username: "dispatch"
//	  account_password_base64: "c2VjcmV0"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//	  status_report:
//	    schedule: "*/5 * * * *"
package config
