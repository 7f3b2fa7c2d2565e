// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort        = "8080"
	DefaultDatabaseURL = "host=localhost user=postgres password=postgres dbname=weblog port=5432 sslmode=disable TimeZone=UTC"
	DefaultSiteURL     = "https://simonwillison.net"
	DefaultSiteTitle   = "Simon Willison's Weblog"
	devSecret          = "dev-secret-change-me"
)

type Config struct {
	Port        string
	DatabaseURL string
	SecretKey   string
	Debug       bool
	Staging     bool
	SiteURL     string
	SiteTitle   string
	LogLevel    string

	CloudflareEmail  string
	CloudflareToken  string
	CloudflareZoneID string
	CloudflareIPFile string

	GoogleAnalyticsID  string
	BeatImportInterval time.Duration
	// ImportSources maps importer name (releases, research, tils, tools,
	// museums) to its source URL, from IMPORT_<NAME>_URL.
	ImportSources map[string]string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() *Config {
	return &Config{
		Port:               getEnvOrDefault("PORT", DefaultPort),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", DefaultDatabaseURL),
		SecretKey:          getEnvOrDefault("SECRET_KEY", devSecret),
		Debug:              getBool("DEBUG"),
		Staging:            getBool("STAGING"),
		SiteURL:            strings.TrimSuffix(getEnvOrDefault("SITE_URL", DefaultSiteURL), "/"),
		SiteTitle:          getEnvOrDefault("SITE_TITLE", DefaultSiteTitle),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		CloudflareEmail:    os.Getenv("CLOUDFLARE_EMAIL"),
		CloudflareToken:    os.Getenv("CLOUDFLARE_TOKEN"),
		CloudflareZoneID:   os.Getenv("CLOUDFLARE_ZONE_ID"),
		CloudflareIPFile:   os.Getenv("CLOUDFLARE_IPS_FILE"),
		GoogleAnalyticsID:  os.Getenv("GOOGLE_ANALYTICS_ID"),
		BeatImportInterval: getDuration("BEAT_IMPORT_INTERVAL"),
		ImportSources:      importSources(),
	}
}

var importerNames = []string{"releases", "research", "tils", "tools", "museums"}

func importSources() map[string]string {
	out := map[string]string{}
	for _, name := range importerNames {
		if v := os.Getenv("IMPORT_" + strings.ToUpper(name) + "_URL"); v != "" {
			out[name] = v
		}
	}
	return out
}

// InsecureSecret reports whether the session key is still the development default.
func (c *Config) InsecureSecret() bool {
	return c.SecretKey == devSecret
}

func (c *Config) CloudflareConfigured() bool {
	return c.CloudflareToken != "" && c.CloudflareZoneID != ""
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func getDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}
