// Package config loads service configuration from environment variables,
// with an optional YAML overlay file for credentials that rotate at
// runtime (web push VAPID keys). All variables use the COMMUNITYD_ prefix.
package config
