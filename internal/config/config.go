package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL     string
	Port            string
	Schema          string
	QueryTimeout    time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxConns        int32 // 0 keeps the pgx default
	LogLevel        string
	LogFormat       string
	SeqURL          string
	CORSOrigins     []string
	RateLimit       float64 // requests per minute per client; 0 disables
	MaxBodyBytes    int64
	FKRowLimit      int
	CatalogCheck    bool
	TrustProxy      bool // honour X-Forwarded-For / X-Real-IP

	dbURL *url.URL
}

func defaults() *Config {
	return &Config{
		Port:            "8080",
		Schema:          "public",
		QueryTimeout:    10 * time.Second,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
		CORSOrigins:     []string{"*"},
		RateLimit:       100,
		MaxBodyBytes:    1 << 20,
	}
}

// Load reads configuration from an optional YAML file, the .env file and
// environment variables, in increasing order of precedence. A missing .env
// is ignored; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (silently ignore if missing)
	_ = godotenv.Load()

	file, err := readFile(path)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return file[key]
	}

	cfg := defaults()
	cfg.DatabaseURL = lookup("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	parsedURL, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	cfg.dbURL = parsedURL

	if v := lookup("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid PORT value %q: must be 1-65535", v)
		}
		cfg.Port = v
	}
	if v := lookup("DB_SCHEMA"); v != "" {
		cfg.Schema = v
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"QUERY_TIMEOUT", &cfg.QueryTimeout},
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v := lookup(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", d.key, v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("invalid %s value %q: must be positive", d.key, v)
		}
		*d.dst = parsed
	}

	if v := lookup("MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid MAX_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.MaxConns = int32(n)
	}

	if v := lookup("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := lookup("LOG_FORMAT"); v != "" {
		v = strings.ToLower(v)
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("invalid LOG_FORMAT value %q: must be text or json", v)
		}
		cfg.LogFormat = v
	}
	cfg.SeqURL = lookup("SEQ_URL")

	if v := lookup("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = cfg.CORSOrigins[:0]
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	if v := lookup("RATE_LIMIT"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT value %q: must be a non-negative number", v)
		}
		cfg.RateLimit = n
	}

	if v := lookup("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_BODY_BYTES value %q: must be a positive integer", v)
		}
		cfg.MaxBodyBytes = n
	}

	if v := lookup("FK_ROW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FK_ROW_LIMIT value %q: must be a non-negative integer", v)
		}
		cfg.FKRowLimit = n
	}

	if v := lookup("CATALOG_CHECK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CATALOG_CHECK value %q: %w", v, err)
		}
		cfg.CatalogCheck = b
	}

	if v := lookup("TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUST_PROXY value %q: %w", v, err)
		}
		cfg.TrustProxy = b
	}

	return cfg, nil
}

// readFile loads a flat YAML mapping. Keys are matched case-insensitively
// against the environment variable names.
func readFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(k)
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, len(val))
			for i, p := range val {
				parts[i] = fmt.Sprint(p)
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// CurrentDatabase returns the database name from the connection URL.
func (c *Config) CurrentDatabase() string {
	if c.dbURL == nil || c.dbURL.Path == "" {
		return ""
	}
	return strings.TrimPrefix(c.dbURL.Path, "/")
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
