package postgres

import (
	"fmt"
	"net/url"

	"mdbundle/internal/config"
)

// BuildConnString builds a PostgreSQL connection string from config.
func BuildConnString(cfg config.PostgresConfig) string {
	// URL-encode credentials to handle special characters
	user := url.QueryEscape(cfg.User)
	password := url.QueryEscape(cfg.Password)

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user,
		password,
		cfg.Host,
		port,
		cfg.Name,
		sslMode,
	)
}
