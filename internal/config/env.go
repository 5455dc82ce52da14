package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// Environment variables read by ApplyEnv.
const (
	EnvDBDSN      = "DEVPRINT_DB_DSN"
	EnvRedisAddr  = "DEVPRINT_REDIS_ADDR"
	EnvChromePath = "DEVPRINT_CHROME_PATH"
)

// LoadDotEnv loads variables from a .env file into the process environment.
// Variables that are already set are not overridden. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv copies environment settings into c. Settings for which changed
// reports true were set on the command line and are kept.
func (c *Config) ApplyEnv(getenv func(string) string, changed func(flag string) bool) {
	if v := getenv(EnvDBDSN); v != "" && !changed("db-dsn") {
		c.DBDSN = v
	}
	if v := getenv(EnvRedisAddr); v != "" && !changed("redis") {
		c.RedisAddr = v
	}
	if v := getenv(EnvChromePath); v != "" && !changed("chrome") {
		c.ChromePath = v
	}
}
