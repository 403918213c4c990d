package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type options struct {
	dotenv      []string
	useDotenv   bool
	environment map[string]string
}

// Option adjusts where Load reads values from.
type Option func(*options)

// WithDotEnv loads the given files (".env" when none) into the process
// environment before parsing. Missing files are skipped and variables that
// are already set win.
func WithDotEnv(files ...string) Option {
	return func(o *options) {
		o.useDotenv = true
		o.dotenv = files
	}
}

// WithEnvironment parses from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *options) { o.environment = vars }
}

// Load fills cfg from its `env`/`envDefault` struct tags.
func Load(cfg any, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.useDotenv {
		files := o.dotenv
		if len(files) == 0 {
			files = []string{".env"}
		}
		for _, f := range files {
			if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", f, err)
			}
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Environment: o.environment}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
