// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to application settings needed by different components while keeping
// configuration details separate from business logic.
//
// Environment variables use the ADSCRIPT_ prefix with nested keys joined by
// underscores, e.g. ADSCRIPT_N8N_WEBHOOK_URL or ADSCRIPT_N8N_RETRY_MAX_ATTEMPTS.
package config
