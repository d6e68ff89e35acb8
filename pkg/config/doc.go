// Package config loads all runtime configuration from GUILDHALL_*
// environment variables and validates it before anything starts.
package config
