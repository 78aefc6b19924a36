// Package config provides configuration helpers for go-panda commands.
//
// Commands read a YAML file when one is given and fall back to
// environment variables, so a bare `ROBOT_HOST=... go run ./cmd/...`
// works without any file on disk.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for a freshly provisioned robot.
const (
	DefaultNetworkTimeoutMS = 1000
	DefaultLogLevel         = "info"
)

// Robot describes how to reach one robot controller.
type Robot struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port,omitempty"`
	NetworkTimeoutMS int    `yaml:"network_timeout_ms,omitempty"`
	LogLevel         string `yaml:"log_level,omitempty"`
}

// Load reads a robot configuration from a YAML file.
func Load(path string) (*Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Robot
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()

	if cfg.Host == "" {
		return nil, fmt.Errorf("config %s: host is required", path)
	}
	return &cfg, nil
}

// FromEnv builds a robot configuration from ROBOT_HOST and friends.
// Exits with a usage message when ROBOT_HOST is not set.
func FromEnv() *Robot {
	host := os.Getenv("ROBOT_HOST")
	if host == "" {
		fmt.Fprintln(os.Stderr, "Error: ROBOT_HOST environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: ROBOT_HOST=192.168.2.105 go run ./cmd/...")
		os.Exit(1)
	}

	cfg := &Robot{
		Host:     host,
		LogLevel: os.Getenv("ROBOT_LOG_LEVEL"),
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Robot) applyDefaults() {
	if c.NetworkTimeoutMS == 0 {
		c.NetworkTimeoutMS = DefaultNetworkTimeoutMS
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// NetworkTimeout returns the configured timeout as a duration.
func (c *Robot) NetworkTimeout() time.Duration {
	return time.Duration(c.NetworkTimeoutMS) * time.Millisecond
}
