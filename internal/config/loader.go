package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a quickdock.yaml from the provided path. A missing file at the
// default path yields the default configuration; an explicitly named file
// must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	expand(cfg)
	resolveWorkdir(cfg, filepath.Dir(absPath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

func expand(cfg *Config) {
	cfg.Backend.Command = os.ExpandEnv(cfg.Backend.Command)
	for i, arg := range cfg.Backend.Args {
		cfg.Backend.Args[i] = os.ExpandEnv(arg)
	}
	if len(cfg.Backend.Env) > 0 {
		env := make(map[string]string, len(cfg.Backend.Env))
		for k, v := range cfg.Backend.Env {
			env[k] = os.ExpandEnv(v)
		}
		cfg.Backend.Env = env
	}
	cfg.Backend.Workdir = os.ExpandEnv(cfg.Backend.Workdir)
}

func resolveWorkdir(cfg *Config, baseDir string) {
	if cfg.Backend.Workdir == "" || filepath.IsAbs(cfg.Backend.Workdir) {
		return
	}
	cfg.Backend.Workdir = filepath.Clean(filepath.Join(baseDir, cfg.Backend.Workdir))
}
