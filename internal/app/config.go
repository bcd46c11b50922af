package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables read into the config,
// e.g. CACHEGATE_AUTH_API_KEY -> auth.api_key.
const envPrefix = "CACHEGATE_"

// AuthMode selects how requests authenticate against the provider.
const (
	AuthModeAPIKey = "api-key"
	AuthModeBearer = "bearer"
)

// Config is the resolved application configuration.
type Config struct {
	// Listen is the gateway bind address.
	Listen string `koanf:"listen" validate:"required,hostname_port"`

	// Model is the default model for CLI chats.
	Model string `koanf:"model" validate:"required"`

	// MaxTokens bounds response length when a request doesn't set its own.
	MaxTokens int64 `koanf:"max_tokens" validate:"gt=0"`

	// BaseURL overrides the provider endpoint, e.g. for a recording proxy.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// CacheDisabled turns off cache annotation globally.
	CacheDisabled bool `koanf:"cache_disabled"`

	// RequestSizeLimit caps inbound gateway request bodies, in bytes.
	RequestSizeLimit int64 `koanf:"request_size_limit" validate:"gt=0"`

	Auth AuthConfig `koanf:"auth"`
}

// AuthConfig holds provider credentials. With an empty APIKey in api-key
// mode, the OS keyring entry written by `cachegate auth login` is used.
type AuthConfig struct {
	Mode        string `koanf:"mode" validate:"oneof=api-key bearer"`
	APIKey      string `koanf:"api_key"`
	BearerToken string `koanf:"bearer_token"`
}

// defaults are the base configuration layer; file and environment override.
func defaults() map[string]any {
	return map[string]any{
		"listen":             "127.0.0.1:8091",
		"model":              "claude-3-5-sonnet-20241022",
		"max_tokens":         1024,
		"request_size_limit": 10 << 20,
		"auth.mode":          AuthModeAPIKey,
	}
}

// LoadConfig resolves configuration in three layers: built-in defaults, an
// optional TOML file, and CACHEGATE_* environment variables. A configPath of
// "" skips the file layer; a non-empty path must exist.
func LoadConfig(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// CACHEGATE_AUTH_API_KEY -> auth.api_key. Only the first
			// underscore separates sections; the rest stay in the key.
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			section, rest, found := strings.Cut(key, "_")
			if found && (section == "auth") {
				return section + "." + rest, value
			}
			return key, value
		},
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
