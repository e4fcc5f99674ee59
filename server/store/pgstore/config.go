package pgstore

import (
	"fmt"
)

type Config struct {
	Host     string `toml:"host" env:"HOST"`
	Port     int    `toml:"port" env:"PORT"`
	Username string `toml:"username" env:"USERNAME"`
	Password string `toml:"password" env:"PASSWORD"`
	Database string `toml:"database" env:"DATABASE"`
	SSLMode  string `toml:"ssl_mode" env:"SSL_MODE"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n  Host: %s\n  Port: %d\n  Username: %s\n  Password: %s\n  Database: %s\n  SSLMode: %s",
		c.Host,
		c.Port,
		c.Username,
		"********",
		c.Database,
		c.SSLMode,
	)
}

// DataSourceName returns a keyword/value connection string understood by both pgx and lib/pq.
func (c Config) DataSourceName() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.Username,
		c.Password,
		c.Database,
		sslMode,
	)
}
