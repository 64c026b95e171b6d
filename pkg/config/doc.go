// Package config provides configuration loading, validation, and hot
// reload for the ZaiGate gateway.
//
// Configuration is read from a YAML file, combined with defaults, and
// overridden by ZAIGATE_* environment variables. The loading sequence is:
//
//  1. Parse YAML file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate the final configuration
//
// A small subset of settings (master API key, pool tuning) can be
// re-applied at runtime via the file watcher; everything else requires
// a restart.
package config
