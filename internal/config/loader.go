package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
// POS_CLIENT_BASE_URL maps onto client.base_url.
const DefaultEnvPrefix = "POS_"

type loader struct {
	skipEnv   bool
	envPrefix string
	filePath  string
	overrides map[string]any
}

// LoadOption configures Load.
type LoadOption func(*loader)

// WithConfigFile adds a YAML file between the defaults and the environment.
func WithConfigFile(path string) LoadOption {
	return func(l *loader) {
		l.filePath = path
	}
}

// WithEnvPrefix overrides DefaultEnvPrefix.
func WithEnvPrefix(prefix string) LoadOption {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// WithOverrides applies nested values last, after the environment. Used for CLI flags and tests.
func WithOverrides(values map[string]any) LoadOption {
	return func(l *loader) {
		l.overrides = values
	}
}

// New returns the built-in defaults without reading any external source.
func New() Config {
	cfg, err := Load(func(l *loader) { l.skipEnv = true })
	if err != nil {
		panic(err) // defaults are static
	}
	return cfg
}

// Load builds the configuration from defaults, an optional YAML file, the environment and overrides,
// in increasing priority.
func Load(options ...LoadOption) (*Settings, error) {
	l := &loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range options {
		opt(l)
	}

	k := koanf.New(".")
	if err := k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, errors.Wrap(err, "[config.Load] defaults")
	}

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "[config.Load] file %s", l.filePath)
		}
	}

	if !l.skipEnv {
		prefix := l.envPrefix
		transform := func(s string) string {
			s = strings.ToLower(strings.TrimPrefix(s, prefix))
			return strings.Replace(s, "_", ".", 1)
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return nil, errors.Wrap(err, "[config.Load] env")
		}
	}

	if len(l.overrides) > 0 {
		if err := k.Load(mapProvider(l.overrides), nil); err != nil {
			return nil, errors.Wrap(err, "[config.Load] overrides")
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, errors.Wrap(err, "[config.Load] unmarshal")
	}
	return &s, nil
}

func defaults() map[string]any {
	return map[string]any{
		"app": map[string]any{
			"name": "POS Client",
			"env":  "DEV",
		},
		"client": map[string]any{
			"base_url":        "http://localhost:3000",
			"request_timeout": "30s",
		},
		"auth": map[string]any{
			"mode":            "body",
			"refresh_timeout": "10s",
			"login_path":      "/auth/login",
			"refresh_path":    "/auth/refresh",
			"logout_path":     "/auth/logout",
		},
		"storage": map[string]any{
			"driver":     "badger",
			"data_dir":   "./data",
			"redis_url":  "redis://localhost:6379/0",
			"key_prefix": "pos.",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "console",
		},
		"devserver": map[string]any{
			"port":              "3000",
			"email":             "admin@demo.com",
			"password":          "123456",
			"name":              "Admin Demo",
			"access_token_ttl":  "10m",
			"refresh_token_ttl": "360h",
			"signing_key":       "dev-signing-key",
		},
	}
}

// mapProvider feeds a nested map into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
