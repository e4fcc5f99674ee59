package mongostore

import (
	"fmt"
	"net/url"
)

type Config struct {
	URI        string `toml:"uri" env:"URI"`
	Database   string `toml:"database" env:"DATABASE"`
	MaxRetries int    `toml:"max_retries" env:"MAX_RETRIES"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n  URI: %s\n  Database: %s\n  MaxRetries: %d",
		redactURI(c.URI),
		c.Database,
		c.MaxRetries,
	)
}

func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "********")
	}
	return u.String()
}
