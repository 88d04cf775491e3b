package botdefense

import (
	"strings"
	"time"
)

// holds bot defense configuration
type Config struct {
	// whether bot defense is active
	Enabled bool

	// how long an IP stays trapped
	TrapTTL time.Duration

	// paths that only scanners would access
	HoneypotPaths []string

	// paths that bypass bot defense (health checks, etc.)
	ExemptPaths []string
}

// returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		TrapTTL: 24 * time.Hour,
		HoneypotPaths: []string{
			// wordpress
			"/wp-admin",
			"/wp-login.php",
			"/wp-content",
			"/wp-includes",
			"/xmlrpc.php",

			// config/secrets
			"/.env",
			"/.git",
			"/config.php",
			"/config.json",
			"/secrets.json",
			"/.aws",

			// admin panels
			"/administrator",
			"/phpmyadmin",
			"/cpanel",

			// backups
			"/backup.zip",
			"/backup.sql",
			"/db.sql",

			// debug/internal
			"/server-status",
			"/server-info",
			"/.htaccess",
			"/.htpasswd",

			// api probing
			"/api/internal",
			"/api/debug",
			"/api/v1/internal",
			"/api/v1/urls/export-all",
			"/api/v1/users/dump",
		},
		ExemptPaths: []string{
			"/health",
			"/metrics",
			"/api/v1/ping",
			"/api/v1/ws", // websocket connections are persistent, not burst requests
		},
	}
}

// checks if a path is a honeypot (prefix match)
func (c *Config) IsHoneypotPath(path string) bool {
	for _, hp := range c.HoneypotPaths {
		if path == hp || strings.HasPrefix(path, hp+"/") {
			return true
		}
	}

	return false
}

// checks if a path bypasses bot defense
func (c *Config) IsExemptPath(path string) bool {
	for _, ep := range c.ExemptPaths {
		if path == ep || strings.HasPrefix(path, ep+"/") {
			return true
		}
	}
	return false
}
