// Package config loads the host shell's quickdock.yaml.
package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/quickdock/quickdock/internal/proc"
)

const (
	// DefaultPath is consulted when no --config flag is given.
	DefaultPath = "quickdock.yaml"

	defaultCommand    = "quickdock-backend"
	defaultPort       = 18093
	defaultDiagBuffer = 256

	// portEnvVar tells the backend which loopback port to bind.
	portEnvVar = "QUICKDOCK_PORT"
)

// Config is the root of the quickdock.yaml document.
type Config struct {
	Backend     BackendSpec `yaml:"backend"`
	Diagnostics DiagSpec    `yaml:"diagnostics"`
}

// BackendSpec describes the sidecar executable and how to reach it.
type BackendSpec struct {
	// Command is the backend executable, resolved against PATH when relative
	// and not explicitly path-qualified.
	Command string `yaml:"command"`
	// Args are passed verbatim to the backend.
	Args []string `yaml:"args"`
	// Port is the loopback port the backend binds; exported to the child as
	// QUICKDOCK_PORT.
	Port int `yaml:"port"`
	// Env entries are added to the child environment.
	Env map[string]string `yaml:"env"`
	// Workdir becomes the child's working directory. Relative paths resolve
	// against the config file's directory.
	Workdir string `yaml:"workdir"`
}

// DiagSpec tunes the diagnostics fan-in.
type DiagSpec struct {
	// Buffer bounds the mux output channel.
	Buffer int `yaml:"buffer"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Backend: BackendSpec{
			Command: defaultCommand,
			Port:    defaultPort,
		},
		Diagnostics: DiagSpec{Buffer: defaultDiagBuffer},
	}
}

// Validate rejects configurations the host cannot act on.
func (c *Config) Validate() error {
	if c.Backend.Command == "" {
		return fmt.Errorf("backend.command is required")
	}
	if c.Backend.Port <= 0 || c.Backend.Port > 65535 {
		return fmt.Errorf("backend.port %d out of range", c.Backend.Port)
	}
	if c.Diagnostics.Buffer < 0 {
		return fmt.Errorf("diagnostics.buffer must not be negative")
	}
	return nil
}

// BaseURL is the loopback address the host uses to reach the backend API.
func (c *Config) BaseURL() string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Backend.Port))
}

// LaunchSpec translates the backend section into a process launch spec.
func (c *Config) LaunchSpec() proc.Spec {
	env := make(map[string]string, len(c.Backend.Env)+1)
	for k, v := range c.Backend.Env {
		env[k] = v
	}
	env[portEnvVar] = strconv.Itoa(c.Backend.Port)
	return proc.Spec{
		Path:    c.Backend.Command,
		Args:    append([]string(nil), c.Backend.Args...),
		Env:     env,
		Workdir: c.Backend.Workdir,
	}
}
