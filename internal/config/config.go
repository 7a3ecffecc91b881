// Package config loads the relay server's listening configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// PortEnv overrides the listening port.
	PortEnv = "PORT"
	// DefaultPort is used when PortEnv is unset.
	DefaultPort = 9002
)

var ErrInvalidPort = errors.New("config: invalid port")

type Config struct {
	Host string
	Port int
}

// Load reads PortEnv after applying the given .env files. Missing files are
// skipped; variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	cfg := Config{Port: DefaultPort}

	if raw, ok := os.LookupEnv(PortEnv); ok && raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 0 || port > 65535 {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidPort, PortEnv, raw)
		}
		cfg.Port = port
	}

	return cfg, nil
}

// Addr returns the host:port to listen on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
