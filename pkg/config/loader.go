package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load besides the per-field overrides.
const (
	EnvConfigFile = "KIKAIKEN_CONFIG"
	EnvDotenvFile = "KIKAIKEN_ENV_FILE"
)

// searchPaths are tried in order when neither an explicit path nor
// KIKAIKEN_CONFIG names a config file.
var searchPaths = []string{"config.yaml", "/etc/kikaiken/config.yaml"}

// Load builds the configuration. Later layers win:
//
//	defaults < YAML file < environment < *_file secrets
//
// A dotenv file is loaded into the environment first and never overrides
// variables that are already set. The result is validated.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("dotenv: %w", err)
	}
	if path := findConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("secret files: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv tolerates a missing ./.env but not a missing file named by
// KIKAIKEN_ENV_FILE.
func loadDotEnv() error {
	path, explicit := os.LookupEnv(EnvDotenvFile)
	if !explicit || path == "" {
		err := godotenv.Load(".env")
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg; keys absent from the file keep their
// current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// stringEnv lists plain string overrides. When two names target one field
// the later one wins, so the KIKAIKEN_* name beats the legacy bot name.
func stringEnv(cfg *Config) []struct {
	name string
	dst  *string
} {
	return []struct {
		name string
		dst  *string
	}{
		{"KIKAIKEN_PROVIDER", &cfg.Provider.Type},
		{"KIKAIKEN_MODEL", &cfg.Provider.Model},
		{"KIKAIKEN_API_KEY", &cfg.Provider.APIKey},
		{"KIKAIKEN_API_BASE", &cfg.Provider.BaseURL},
		{"KIKAIKEN_SYSTEM_PROMPT", &cfg.Provider.SystemPrompt},
		{"KIKAIKEN_STORAGE", &cfg.Storage.Type},
		{"KIKAIKEN_POSTGRES_DSN", &cfg.Storage.Postgres.DSN},
		{"KIKAIKEN_AUTH_TYPE", &cfg.Auth.Type},
		{"KIKAIKEN_JWT_SECRET", &cfg.Auth.JWT.Secret},
		{"KIKAIKEN_LOG_FORMAT", &cfg.Logging.Format},
		{"BACKUP_PATH", &cfg.Storage.SQLite.Path},
		{"KIKAIKEN_SQLITE_PATH", &cfg.Storage.SQLite.Path},
		{"LOG_LEVEL", &cfg.Logging.Level},
		{"KIKAIKEN_LOG_LEVEL", &cfg.Logging.Level},
	}
}

// applyEnvOverrides copies set variables into cfg. Every malformed value is
// reported, not just the first.
func applyEnvOverrides(cfg *Config) error {
	for _, b := range stringEnv(cfg) {
		if v := os.Getenv(b.name); v != "" {
			*b.dst = v
		}
	}

	var errs []error
	parse := func(name string, set func(string) error) {
		if v := os.Getenv(name); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	parse("KIKAIKEN_PORT", func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			cfg.Server.Port = n
		}
		return err
	})
	parse("KIKAIKEN_PROVIDER_TIMEOUT", func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			cfg.Provider.Timeout = &d
		}
		return err
	})
	parse("KIKAIKEN_PROVIDER_MAX_RETRIES", func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			cfg.Provider.MaxRetries = &n
		}
		return err
	})
	// JSON array of caller keys, e.g. [{"key":"...","subject":"bot"}].
	parse("KIKAIKEN_API_KEYS", func(v string) error {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			return fmt.Errorf("parsing API keys JSON: %w", err)
		}
		if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
		return nil
	})

	return errors.Join(errs...)
}

// secretRef ties a *_file setting to the value it fills.
type secretRef struct {
	name string
	file string
	dst  *string
}

// resolveFileReferences fills empty secret values from their *_file
// counterparts, trimming surrounding whitespace. A value that is already
// set wins over its file.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		data, err := os.ReadFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = strings.TrimSpace(string(data))
	}
	return nil
}
