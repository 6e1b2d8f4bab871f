package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Z-MONTLOCS/https-z-montlocs.github.io/internal/storage"
)

type Config struct {
	Env           string
	ListenAddr    string
	PublicBaseURL string
	LogLevel      string

	// StorageDriver selects the backend: postgres, sqlite, or memory.
	StorageDriver string

	DatabaseURL   string
	DBHost        string
	DBPort        int
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBSSLRootCert string

	SQLitePath string

	// TextLimit is the per-identity quota applied when a record is created.
	TextLimit int

	IPLookupURL string
	GeoAPIURL   string
	GeoAPIKey   string
}

func Load() (Config, error) {
	cfg := Config{
		Env:           getenvDefault("ENV", "development"),
		ListenAddr:    getenvDefault("LISTEN_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenvDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),

		StorageDriver: getenvDefault("STORAGE_DRIVER", "postgres"),

		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBHost:        getenvDefault("DB_HOST", "127.0.0.1"),
		DBName:        getenvDefault("DB_NAME", "vocrypt"),
		DBUser:        getenvDefault("DB_USER", "vocrypt_app"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBSSLMode:     getenvDefault("DB_SSLMODE", "disable"),
		DBSSLRootCert: strings.TrimSpace(os.Getenv("DB_SSLROOTCERT")),

		SQLitePath: getenvDefault("SQLITE_PATH", "vocrypt.db"),

		IPLookupURL: getenvDefault("IP_LOOKUP_URL", "https://api.ipify.org?format=json"),
		GeoAPIURL:   strings.TrimSpace(os.Getenv("GEO_API_URL")),
		GeoAPIKey:   strings.TrimSpace(os.Getenv("GEO_API_KEY")),
	}

	dbPortStr := getenvDefault("DB_PORT", "5432")
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil || dbPort <= 0 || dbPort > 65535 {
		return Config{}, fmt.Errorf("invalid DB_PORT %q", dbPortStr)
	}
	cfg.DBPort = dbPort

	limitStr := getenvDefault("TEXT_LIMIT", strconv.Itoa(storage.DefaultTextLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return Config{}, fmt.Errorf("invalid TEXT_LIMIT %q", limitStr)
	}
	cfg.TextLimit = limit

	switch cfg.StorageDriver {
	case "postgres", "sqlite", "memory":
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_DRIVER %q (want postgres, sqlite, or memory)", cfg.StorageDriver)
	}

	if cfg.PublicBaseURL == "" {
		return Config{}, errors.New("PUBLIC_BASE_URL is required")
	}
	if _, err := url.Parse(cfg.PublicBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid PUBLIC_BASE_URL: %w", err)
	}

	if cfg.Env == "production" && cfg.StorageDriver == "memory" {
		return Config{}, errors.New("STORAGE_DRIVER=memory is not allowed in production")
	}

	// Geolocation is optional, but a URL without a key (or the reverse) is
	// a misconfiguration rather than "disabled".
	if (cfg.GeoAPIURL == "") != (cfg.GeoAPIKey == "") {
		return Config{}, errors.New("GEO_API_URL and GEO_API_KEY must be set together")
	}

	return cfg, nil
}

// GeoEnabled reports whether a geolocation endpoint is configured.
func (c Config) GeoEnabled() bool {
	return c.GeoAPIURL != "" && c.GeoAPIKey != ""
}

func (c Config) PostgresURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}

	missing := make([]string, 0, 4)
	if c.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if c.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if c.DBUser == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DBSSLMode == "" {
		missing = append(missing, "DB_SSLMODE")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing env vars: %s", strings.Join(missing, ", "))
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := u.Query()
	q.Set("sslmode", c.DBSSLMode)
	if c.DBSSLRootCert != "" {
		q.Set("sslrootcert", c.DBSSLRootCert)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
