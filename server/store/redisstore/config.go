package redisstore

import (
	"fmt"
)

type Config struct {
	Addr     string `toml:"addr" env:"ADDR"`
	Username string `toml:"username" env:"USERNAME"`
	Password string `toml:"password" env:"PASSWORD"`
	DB       int    `toml:"db" env:"DB"`
	// Prefix is prepended to every key and channel name.
	Prefix     string `toml:"prefix" env:"PREFIX"`
	MaxRetries int    `toml:"max_retries" env:"MAX_RETRIES"`
}

func (c Config) String() string {
	return fmt.Sprintf("\n  Addr: %s\n  Username: %s\n  Password: %s\n  DB: %d\n  Prefix: %s\n  MaxRetries: %d",
		c.Addr,
		c.Username,
		"********",
		c.DB,
		c.Prefix,
		c.MaxRetries,
	)
}
